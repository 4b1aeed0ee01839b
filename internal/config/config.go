package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	CreditEvent string `mapstructure:"credit_event"`
}

type BusinessConfig struct {
	Campaigns            []CampaignConfig `mapstructure:"campaigns"`
	AuditIntervalSeconds int              `mapstructure:"audit_interval_seconds"`
	MaxRetryCount        int              `mapstructure:"max_retry_count"`
}

// CampaignConfig 赠送活动定义
// 活动是纯配置，不落库；CampaignKey 是赠送记录表的分组键
type CampaignConfig struct {
	Key           string `mapstructure:"key"`            // 活动标识，如 vault:7
	BonusCredits  int64  `mapstructure:"bonus_credits"`  // 赠送积分数
	Active        bool   `mapstructure:"active"`         // 是否开放领取
	RequireSocial bool   `mapstructure:"require_social"` // 领取前是否要求已绑定社交账号
}

// FindCampaign 按 key 查找活动定义，不存在返回 nil
func (c *Config) FindCampaign(key string) *CampaignConfig {
	for i := range c.Business.Campaigns {
		if c.Business.Campaigns[i].Key == key {
			return &c.Business.Campaigns[i]
		}
	}
	return nil
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	return config
}
