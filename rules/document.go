package rules

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// TimeWindowSec holds the correlation windows in seconds, as written in the
// rules document. Fractional seconds are allowed.
type TimeWindowSec struct {
	PrecursorBefore float64 `yaml:"precursor_before" validate:"gte=0"`
	PrecursorAfter  float64 `yaml:"precursor_after" validate:"gte=0"`
	AnchorMerge     float64 `yaml:"anchor_merge" validate:"gte=0"`
}

// ErrorPatterns holds the anchor regexes and the static code->name overrides.
type ErrorPatterns struct {
	// Each anchor regex must have exactly one capture group: the numeric code.
	Anchor []string `yaml:"anchor" validate:"min=1,dive,required"`
	// ConfirmMap has lower priority than the symbol index.
	ConfirmMap map[string]string `yaml:"confirm_map,omitempty"`
}

// Category is one filename->category rule.
type Category struct {
	Name    string
	Pattern string
}

// Categories is an ordered filename->category table. It is written as a YAML
// mapping and keeps the document order: the first matching rule wins.
type Categories []Category

func (c *Categories) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case yaml.MappingNode:
		items := make(Categories, 0, len(value.Content)/2)
		seen := make(map[string]struct{}, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			k := value.Content[i]
			v := value.Content[i+1]
			name := strings.TrimSpace(k.Value)
			if name == "" {
				continue
			}
			if v.Kind != yaml.ScalarNode {
				return fmt.Errorf("categories.%s: pattern must be a string (line %d)", name, v.Line)
			}
			if _, dup := seen[name]; dup {
				return fmt.Errorf("categories.%s: duplicate category (line %d)", name, k.Line)
			}
			seen[name] = struct{}{}
			items = append(items, Category{Name: name, Pattern: v.Value})
		}
		*c = items
		return nil
	case yaml.SequenceNode:
		// list form: [{name: ..., pattern: ...}]
		var tmp []struct {
			Name    string `yaml:"name"`
			Pattern string `yaml:"pattern"`
		}
		if err := value.Decode(&tmp); err != nil {
			return err
		}
		items := make(Categories, 0, len(tmp))
		for _, t := range tmp {
			if strings.TrimSpace(t.Name) == "" {
				continue
			}
			items = append(items, Category{Name: strings.TrimSpace(t.Name), Pattern: t.Pattern})
		}
		*c = items
		return nil
	default:
		return nil
	}
}

func (c Categories) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, cat := range c {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: cat.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: cat.Pattern},
		)
	}
	return node, nil
}

// Document is the persisted rules document.
type Document struct {
	Version            string            `yaml:"version"`
	TimeWindowSec      TimeWindowSec     `yaml:"time_window_sec"`
	Categories         Categories        `yaml:"categories"`
	ErrorPatterns      ErrorPatterns     `yaml:"error_patterns"`
	PrecursorPatterns  []string          `yaml:"precursor_patterns" validate:"dive,required"`
	ConfusionWhitelist []string          `yaml:"confusion_whitelist" validate:"dive,required"`
	DriveKeywords      []string          `yaml:"drive_keywords" validate:"dive,required"`
	AxisMap            map[string]string `yaml:"axis_map,omitempty"`
	Terminology        map[string]string `yaml:"terminology,omitempty"`
}

// Clone returns a deep copy so callers can derive documents without touching
// the one a live Catalog was compiled from.
func (d Document) Clone() Document {
	out := d
	out.Categories = append(Categories(nil), d.Categories...)
	out.ErrorPatterns.Anchor = append([]string(nil), d.ErrorPatterns.Anchor...)
	out.ErrorPatterns.ConfirmMap = cloneMap(d.ErrorPatterns.ConfirmMap)
	out.PrecursorPatterns = append([]string(nil), d.PrecursorPatterns...)
	out.ConfusionWhitelist = append([]string(nil), d.ConfusionWhitelist...)
	out.DriveKeywords = append([]string(nil), d.DriveKeywords...)
	out.AxisMap = cloneMap(d.AxisMap)
	out.Terminology = cloneMap(d.Terminology)
	return out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Default returns the rules shipped with the analyzer. It is used when no
// rules file exists yet.
//
// Category order matters: more specific names (BCR_RawData, AMC_Send_Periodic,
// ExecuteJobThread, MonitoringDetail, OHTDETECTWarnning) come before the
// broader rule that would otherwise swallow them.
func Default() Document {
	return Document{
		Version: "v1.0",
		TimeWindowSec: TimeWindowSec{
			PrecursorBefore: 3,
			PrecursorAfter:  1,
			AnchorMerge:     2,
		},
		Categories: Categories{
			{"MasterLog", `^\[master\]_.*\.log$`},
			{"Trace_C", `AMC_AXIS\[\d\]_C_TRACE_.*\.log(\.zip)?$`},
			{"Trace_M", `AMC_AXIS\[\d\]_M_TRACE_.*\.log(\.zip)?$`},
			{"AMC_Recv", `AMC_Recv.*\.log(\.zip)?$`},
			{"MCC", `MCC.*\.log(\.zip)?$`},
			{"User", `User.*\.log(\.zip)?$`},
			{"AMC_Send_Periodic", `AMC_Send_Periodic.*\.log(\.zip)?$`},
			{"AMC_Send", `AMC_Send.*\.log(\.zip)?$`},
			{"Assistant", `Assistant.*\.log(\.zip)?$`},
			{"AutoRecovery", `AutoRecovery.*\.log(\.zip)?$`},
			{"BCR_RawData", `BCR.*RawData.*\.log(\.zip)?$`},
			{"BCR", `BCR.*\.log(\.zip)?$`},
			{"CarrierID", `CarrierID.*\.log(\.zip)?$`},
			{"CID-LOG", `CID-?LOG.*\.log(\.zip)?$`},
			{"CmdManager", `CmdManager.*\.log(\.zip)?$`},
			{"CPUandMemInfo", `CPUandMemInfo.*\.log(\.zip)?$`},
			{"OHTDETECTWarnning", `OHTDETECTWarnning.*\.log(\.zip)?$`},
			{"DETECT", `DETECT.*\.log(\.zip)?$`},
			{"DiagManager", `DiagManager.*\.log(\.zip)?$`},
			{"DrivingCtrl", `DrivingCtrl.*\.log(\.zip)?$`},
			{"EQPIOError", `EQPIOError.*\.log(\.zip)?$`},
			{"ExecuteJobThread", `ExecuteJobThread.*\.log(\.zip)?$`},
			{"Execute", `Execute.*\.log(\.zip)?$`},
			{"FM", `FM.*\.log(\.zip)?$`},
			{"HIDRawData", `HIDRawData.*\.log(\.zip)?$`},
			{"IOTComm", `IOTComm.*\.log(\.zip)?$`},
			{"IOTHUB", `IOTHUB.*\.log(\.zip)?$`},
			{"ManualControl", `ManualControl.*\.log(\.zip)?$`},
			{"MonitoringDetail", `MonitoringDetail.*\.log(\.zip)?$`},
			{"Monitor", `Monitor.*\.log(\.zip)?$`},
			{"Passpermit", `Passpermit.*\.log(\.zip)?$`},
			{"PathSearch", `PathSearch.*\.log(\.zip)?$`},
			{"QRTest", `QRTest.*\.log(\.zip)?$`},
			{"Shutter", `Shutter.*\.log(\.zip)?$`},
			{"SOS_Rcv_RawData", `SOS[_-]?Rcv[_-]?RawData.*\.log(\.zip)?$`},
			{"ThreadCycle", `ThreadCycle.*\.log(\.zip)?$`},
			{"TaskControl", `TaskControl.*\.log(\.zip)?$`},
			{"UBGPatternCom", `UBGPatternComp?.*\.log(\.zip)?$`},
			{"UDPCommunication", `UDPCommunication.*\.log(\.zip)?$`},
			{"WirelessNet", `WirelessNet.*\.log(\.zip)?$`},
		},
		ErrorPatterns: ErrorPatterns{
			Anchor: []string{`\[E\s*(\d{3})\]`, `Error\s*[:=]\s*(\d{3})`},
			ConfirmMap: map[string]string{
				"960": "ERR_AXIS2_SERVO_OFFED",
				"464": "ERR_BUMPER_PRESS",
			},
		},
		PrecursorPatterns: []string{
			`previously sent frames are received/processed\s*\(frame loss\)!`,
			`Ethernet cable not connected`,
			`\blink\s+(?:is\s+)?down\b`,
			`carrier\s+lost`,
			`PHY\s+reset`,
			`\bCRC\s+error\b`,
			`(?:rx|tx)\s+(?:drop|error|lost)`,
			`\bdisconnect(?:ed)?\b`,
			`\breconnect\b`,
			`\btimeout\b`,
		},
		ConfusionWhitelist: []string{
			`\bNe\d{3,}\b`, `\bCha\d{3,}\b`, `\bNode\d+\b`, `\bChannel\d+\b`,
		},
		DriveKeywords: []string{
			`\bDRIVE\b`, `\bRUN\b`, `\bVEL\b`, `\bSPEED\b`, `\bMOVE\b`, `\bACC\b`, `\bDCC\b`,
		},
		AxisMap: map[string]string{
			"0": "Driving-Rear",
			"1": "Driving-Front",
			"2": "Hoist",
			"3": "Slide",
		},
		Terminology: map[string]string{
			"Mark":      "Positioning move the vehicle performs to settle exactly on a nearby node.",
			"small add": "Very short corrective move used while marking or when the vehicle must adjust by a tiny distance.",
		},
	}
}
