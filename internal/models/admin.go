package models

import "time"

// 管理员状态
const (
	AdminStatusDisabled int8 = 0
	AdminStatusActive   int8 = 1
)

// 管理员角色：超级管理员可管理一切；财务负责提现打款与线下凭证审核；客服只读
const (
	RoleSuperAdmin   = "super_admin"
	RoleFinanceAdmin = "finance_admin"
	RoleSupport      = "support"
)

// Admin 后台账号，用户名不区分大小写，入库前统一转小写
type Admin struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"type:varchar(50);uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"type:varchar(255);not null" json:"-"`
	Name         string     `gorm:"type:varchar(50);not null" json:"name"`
	Email        *string    `gorm:"type:varchar(100)" json:"email,omitempty"`
	Role         string     `gorm:"type:varchar(30);not null" json:"role"`
	Status       int8       `gorm:"type:smallint;not null;default:1" json:"status"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP  *string    `gorm:"type:varchar(45)" json:"last_login_ip,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Admin) TableName() string { return "admins" }

func (a *Admin) IsActive() bool { return a.Status == AdminStatusActive }

// ValidAdminRole 是否为已知角色
func ValidAdminRole(role string) bool {
	switch role {
	case RoleSuperAdmin, RoleFinanceAdmin, RoleSupport:
		return true
	}
	return false
}

// OperationLog 管理端写操作审计记录，由操作日志中间件写入
type OperationLog struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AdminID     int64     `gorm:"index;not null" json:"admin_id"`
	Module      string    `gorm:"type:varchar(50);not null" json:"module"`
	Action      string    `gorm:"type:varchar(50);not null" json:"action"`
	TargetType  *string   `gorm:"type:varchar(50)" json:"target_type,omitempty"`
	TargetID    *int64    `json:"target_id,omitempty"`
	RequestData JSON      `gorm:"type:jsonb" json:"request_data,omitempty"`
	StatusCode  int       `gorm:"not null;default:0" json:"status_code"`
	IP          string    `gorm:"type:varchar(45);not null" json:"ip"`
	UserAgent   *string   `gorm:"type:varchar(255)" json:"user_agent,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`

	Admin *Admin `gorm:"foreignKey:AdminID" json:"admin,omitempty"`
}

func (OperationLog) TableName() string { return "operation_logs" }
