// 包 provider：提供方配置（providerId -> enabled/codespace/operatorId/excludedFeeds）及其来源
package provider

import (
	"context"
	"slices"
)

// 上游文件类型，用于 ExcludeFeeds
const (
	FeedVehicleStatus      = "vehicle_status"
	FeedStationStatus      = "station_status"
	FeedStationInformation = "station_information"
)

// Config：单个提供方配置；SystemID 即 providerId
type Config struct {
	SystemID     string   `yaml:"systemId" json:"systemId" validate:"required,excludes=%"`
	Codespace    string   `yaml:"codespace" json:"codespace" validate:"required,excludes=%"`
	OperatorID   string   `yaml:"operatorId" json:"operatorId" validate:"excludes=%"`
	OperatorName string   `yaml:"operatorName" json:"operatorName"`
	Enabled      bool     `yaml:"-" json:"enabled"`
	ExcludeFeeds []string `yaml:"excludeFeeds" json:"excludeFeeds" validate:"dive,oneof=vehicle_status station_status station_information"`
}

func (c Config) Excludes(feed string) bool { return slices.Contains(c.ExcludeFeeds, feed) }

// Registry：按 id 查询当前配置
type Registry interface {
	Lookup(id string) (Config, bool)
	All() []Config
}

// Source：配置来源（YAML 文件或 PostgreSQL）
type Source interface {
	Load(ctx context.Context) ([]Config, error)
}
