package sms

import (
	"context"
	"encoding/json"
	"fmt"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	dysmsapi "github.com/alibabacloud-go/dysmsapi-20170525/v3/client"
	"github.com/alibabacloud-go/tea/tea"
)

const (
	aliyunEndpoint      = "dysmsapi.aliyuncs.com"
	aliyunDefaultRegion = "cn-hangzhou"
)

type AliyunConfig struct {
	AccessKeyID     string
	AccessKeySecret string
	SignName        string
	RegionID        string
	Templates       map[string]string // 覆盖 DefaultTemplates
}

// AliyunSender 通过阿里云 dysmsapi 发送
type AliyunSender struct {
	client    *dysmsapi.Client
	signName  string
	templates map[string]string
}

func NewAliyunSender(cfg *AliyunConfig) (*AliyunSender, error) {
	region := cfg.RegionID
	if region == "" {
		region = aliyunDefaultRegion
	}
	client, err := dysmsapi.NewClient(&openapi.Config{
		AccessKeyId:     tea.String(cfg.AccessKeyID),
		AccessKeySecret: tea.String(cfg.AccessKeySecret),
		RegionId:        tea.String(region),
		Endpoint:        tea.String(aliyunEndpoint),
	})
	if err != nil {
		return nil, fmt.Errorf("aliyun sms client: %w", err)
	}
	return &AliyunSender{client: client, signName: cfg.SignName, templates: mergeTemplates(cfg.Templates)}, nil
}

func mergeTemplates(overrides map[string]string) map[string]string {
	out := make(map[string]string, len(DefaultTemplates)+len(overrides))
	for k, v := range DefaultTemplates {
		out[k] = v
	}
	for k, v := range overrides {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Send 服务商返回码不是 OK 时视为失败
func (s *AliyunSender) Send(_ context.Context, msg Message) error {
	code, ok := s.templates[msg.Template]
	if !ok {
		return fmt.Errorf("sms template %q not configured", msg.Template)
	}
	params, err := json.Marshal(msg.Params)
	if err != nil {
		return fmt.Errorf("encode sms params: %w", err)
	}

	resp, err := s.client.SendSms(&dysmsapi.SendSmsRequest{
		PhoneNumbers:  tea.String(msg.Phone),
		SignName:      tea.String(s.signName),
		TemplateCode:  tea.String(code),
		TemplateParam: tea.String(string(params)),
	})
	if err != nil {
		return fmt.Errorf("aliyun send sms: %w", err)
	}
	if resp.Body == nil || tea.StringValue(resp.Body.Code) != "OK" {
		reason := "empty response"
		if resp.Body != nil {
			reason = tea.StringValue(resp.Body.Code) + ": " + tea.StringValue(resp.Body.Message)
		}
		return fmt.Errorf("aliyun send sms rejected: %s", reason)
	}
	return nil
}
