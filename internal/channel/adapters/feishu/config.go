package feishu

import (
	"fmt"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
)

const (
	regionFeishu = "feishu"
	regionLark   = "lark"
)

// Config holds the Feishu app credentials.
type Config struct {
	AppID             string
	AppSecret         string
	EncryptKey        string
	VerificationToken string
	Region            string
	// BaseURL overrides the open platform base derived from Region.
	BaseURL string
}

func (c Config) validate() error {
	if strings.TrimSpace(c.AppID) == "" || strings.TrimSpace(c.AppSecret) == "" {
		return fmt.Errorf("feishu app_id and app_secret are required")
	}
	return nil
}

func normalizeConfig(cfg Config) (Config, error) {
	region, err := normalizeRegion(cfg.Region)
	if err != nil {
		return Config{}, err
	}
	return Config{
		AppID:             strings.TrimSpace(cfg.AppID),
		AppSecret:         strings.TrimSpace(cfg.AppSecret),
		EncryptKey:        strings.TrimSpace(cfg.EncryptKey),
		VerificationToken: strings.TrimSpace(cfg.VerificationToken),
		Region:            region,
		BaseURL:           strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
	}, nil
}

func normalizeTarget(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "open_id:") || strings.HasPrefix(value, "user_id:") || strings.HasPrefix(value, "chat_id:") {
		return value
	}
	if strings.HasPrefix(value, "ou_") {
		return "open_id:" + value
	}
	if strings.HasPrefix(value, "oc_") {
		return "chat_id:" + value
	}
	return "open_id:" + value
}

func normalizeRegion(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", regionFeishu, "cn", "china":
		return regionFeishu, nil
	case regionLark, "global", "intl", "international":
		return regionLark, nil
	default:
		return "", fmt.Errorf("feishu region must be feishu or lark")
	}
}

func (c Config) openBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Region == regionLark {
		return lark.LarkBaseUrl
	}
	return lark.FeishuBaseUrl
}
