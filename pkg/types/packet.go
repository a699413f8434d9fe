package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Packet 表示被评估的数据包，由数据源构造后只读
type Packet struct {
	ID             string         `json:"id,omitempty" yaml:"id,omitempty"`
	SrcIP          string         `json:"src_ip" yaml:"src_ip"`
	DstIP          string         `json:"dst_ip" yaml:"dst_ip"`
	SrcPort        int            `json:"src_port" yaml:"src_port"`
	DstPort        int            `json:"dst_port" yaml:"dst_port"`
	Protocol       Protocol       `json:"protocol" yaml:"protocol"`
	Payload        string         `json:"payload" yaml:"payload"`
	Size           int            `json:"size" yaml:"size"`                                           // 声明的报文大小
	AttackCategory AttackCategory `json:"attack_category,omitempty" yaml:"attack_category,omitempty"` // 仅用于合成/测试报文
}

// Identity 返回用于日志和摘要的报文标识
func (p *Packet) Identity() string {
	id := p.ID
	if id == "" {
		id = "-"
	}
	return fmt.Sprintf("%s %s %s:%d -> %s:%d", id, p.Protocol, p.SrcIP, p.SrcPort, p.DstIP, p.DstPort)
}

type packetFields Packet

// packetJSON payload 不是合法 UTF-8 时改写到 payload_base64，保证序列化前后字节一致
type packetJSON struct {
	packetFields
	PayloadBase64 string `json:"payload_base64,omitempty"`
}

// MarshalJSON 原始二进制 payload 以 base64 输出，账本哈希依赖此编码无损
func (p Packet) MarshalJSON() ([]byte, error) {
	out := packetJSON{packetFields: packetFields(p)}
	if !utf8.ValidString(p.Payload) {
		out.Payload = ""
		out.PayloadBase64 = base64.StdEncoding.EncodeToString([]byte(p.Payload))
	}
	return json.Marshal(out)
}

func (p *Packet) UnmarshalJSON(data []byte) error {
	var in packetJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*p = Packet(in.packetFields)
	if in.PayloadBase64 != "" {
		raw, err := base64.StdEncoding.DecodeString(in.PayloadBase64)
		if err != nil {
			return fmt.Errorf("decode payload_base64: %w", err)
		}
		p.Payload = string(raw)
	}
	return nil
}

// Protocol 报文协议，取值为固定集合
type Protocol string

const (
	ProtocolTCP   Protocol = "TCP"
	ProtocolUDP   Protocol = "UDP"
	ProtocolICMP  Protocol = "ICMP"
	ProtocolHTTP  Protocol = "HTTP"
	ProtocolHTTPS Protocol = "HTTPS"
	ProtocolFTP   Protocol = "FTP"
	ProtocolSSH   Protocol = "SSH"
	ProtocolDNS   Protocol = "DNS"
)

var protocols = []Protocol{
	ProtocolTCP, ProtocolUDP, ProtocolICMP, ProtocolHTTP,
	ProtocolHTTPS, ProtocolFTP, ProtocolSSH, ProtocolDNS,
}

// Protocols 返回所有支持的协议
func Protocols() []Protocol {
	out := make([]Protocol, len(protocols))
	copy(out, protocols)
	return out
}

// ParseProtocol 解析协议名称，大小写不敏感
func ParseProtocol(s string) (Protocol, error) {
	upper := Protocol(strings.ToUpper(strings.TrimSpace(s)))
	for _, p := range protocols {
		if p == upper {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown protocol %q", s)
}

// Valid 判断协议是否在支持的集合内
func (p Protocol) Valid() bool {
	for _, known := range protocols {
		if p == known {
			return true
		}
	}
	return false
}

// AttackCategory 合成报文声明的攻击类型
type AttackCategory string

const (
	AttackNone             AttackCategory = ""
	AttackSQLInjection     AttackCategory = "SQL_INJECTION"
	AttackXSS              AttackCategory = "XSS"
	AttackPathTraversal    AttackCategory = "PATH_TRAVERSAL"
	AttackCommandInjection AttackCategory = "COMMAND_INJECTION"
	AttackPortScan         AttackCategory = "PORT_SCAN"
	AttackDoS              AttackCategory = "DOS"
)

// Stage 表示处理阶段
type Stage int

const (
	StageSource     Stage = iota + 1 //数据源
	StageDetection                   //信号检测与评分
	StageLedger                      //写入账本
	StageSink                        //结果输出
)

func (s Stage) String() string {
	switch s {
	case StageSource:
		return "source"
	case StageDetection:
		return "detection"
	case StageLedger:
		return "ledger"
	case StageSink:
		return "sink"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}
