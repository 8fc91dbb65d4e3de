package spatial

import (
	"fmt"
	"strconv"
	"strings"

	"gbfs-sync/internal/model"
	"gbfs-sync/internal/provider"
)

// Separator：索引 id 各段之间的分隔符
const Separator = "%"

// Owner：索引 id 的公共前缀（实体 id 与提供方命名空间）
type Owner struct {
	ID         string
	Codespace  string
	SystemID   string
	OperatorID string
}

func (o Owner) parts() []string { return []string{o.ID, o.Codespace, o.SystemID, o.OperatorID} }

func ownerOf(id string, p provider.Config) Owner {
	return Owner{ID: id, Codespace: p.Codespace, SystemID: p.SystemID, OperatorID: p.OperatorID}
}

// VehicleID：车辆索引 id，附带形态、动力、预约与停用标记，过滤时无需回查缓存
type VehicleID struct {
	Owner
	FormFactor     model.FormFactor
	PropulsionType model.PropulsionType
	Reserved       bool
	Disabled       bool
}

func NewVehicleID(v *model.Vehicle, p provider.Config) VehicleID {
	return VehicleID{
		Owner:          ownerOf(v.ID, p),
		FormFactor:     v.FormFactor(),
		PropulsionType: v.PropulsionType(),
		Reserved:       v.Reserved,
		Disabled:       v.Disabled,
	}
}

func (v VehicleID) String() string {
	return strings.Join(append(v.parts(),
		string(v.FormFactor),
		string(v.PropulsionType),
		strconv.FormatBool(v.Reserved),
		strconv.FormatBool(v.Disabled),
	), Separator)
}

func ParseVehicleID(s string) (VehicleID, error) {
	p := strings.Split(s, Separator)
	if len(p) != 8 {
		return VehicleID{}, fmt.Errorf("vehicle index id %q: got %d parts, want 8", s, len(p))
	}
	reserved, err := strconv.ParseBool(p[6])
	if err != nil {
		return VehicleID{}, fmt.Errorf("vehicle index id %q: reserved: %w", s, err)
	}
	disabled, err := strconv.ParseBool(p[7])
	if err != nil {
		return VehicleID{}, fmt.Errorf("vehicle index id %q: disabled: %w", s, err)
	}
	return VehicleID{
		Owner:          Owner{ID: p[0], Codespace: p[1], SystemID: p[2], OperatorID: p[3]},
		FormFactor:     model.FormFactor(p[4]),
		PropulsionType: model.PropulsionType(p[5]),
		Reserved:       reserved,
		Disabled:       disabled,
	}, nil
}

// StationID：站点索引 id，附带可用车型的形态与动力列表（逗号分隔）
type StationID struct {
	Owner
	FormFactors     []model.FormFactor
	PropulsionTypes []model.PropulsionType
}

func NewStationID(s *model.Station, p provider.Config) StationID {
	return StationID{
		Owner:           ownerOf(s.ID, p),
		FormFactors:     s.AvailableFormFactors(),
		PropulsionTypes: s.AvailablePropulsionTypes(),
	}
}

func (s StationID) String() string {
	ff := make([]string, len(s.FormFactors))
	for i, f := range s.FormFactors {
		ff[i] = string(f)
	}
	pt := make([]string, len(s.PropulsionTypes))
	for i, x := range s.PropulsionTypes {
		pt[i] = string(x)
	}
	return strings.Join(append(s.parts(), strings.Join(ff, ","), strings.Join(pt, ",")), Separator)
}

func ParseStationID(s string) (StationID, error) {
	p := strings.Split(s, Separator)
	if len(p) != 6 {
		return StationID{}, fmt.Errorf("station index id %q: got %d parts, want 6", s, len(p))
	}
	out := StationID{Owner: Owner{ID: p[0], Codespace: p[1], SystemID: p[2], OperatorID: p[3]}}
	for _, f := range splitList(p[4]) {
		out.FormFactors = append(out.FormFactors, model.FormFactor(f))
	}
	for _, x := range splitList(p[5]) {
		out.PropulsionTypes = append(out.PropulsionTypes, model.PropulsionType(x))
	}
	return out, nil
}

// ParseOwner：只解析公共前缀，用于按提供方清理
func ParseOwner(s string) (Owner, bool) {
	p := strings.SplitN(s, Separator, 5)
	if len(p) < 4 {
		return Owner{}, false
	}
	return Owner{ID: p[0], Codespace: p[1], SystemID: p[2], OperatorID: p[3]}, true
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
