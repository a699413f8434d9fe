package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/haolipeng/firewall_ledger/pkg/metrics"
	"github.com/haolipeng/firewall_ledger/pkg/types"
	"github.com/sirupsen/logrus"
)

// 按知名端口细分应用层协议
var wellKnownPorts = map[int]types.Protocol{
	80:  types.ProtocolHTTP,
	443: types.ProtocolHTTPS,
	21:  types.ProtocolFTP,
	22:  types.ProtocolSSH,
	53:  types.ProtocolDNS,
}

// PcapFileSource 从离线 pcap 文件读取报文，文件读完后关闭输出
type PcapFileSource struct {
	file     *os.File
	reader   *pcapgo.Reader
	output   chan *types.Packet
	done     chan struct{}
	stats    *metrics.SourceMetrics
	filename string
}

func NewPcapFileSource(filename string, bufferSize int) (*PcapFileSource, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", filename, err)
	}

	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pcap header %s: %w", filename, err)
	}

	return &PcapFileSource{
		file:     f,
		reader:   r,
		output:   make(chan *types.Packet, bufferSize),
		done:     make(chan struct{}),
		filename: filename,
		stats:    &metrics.SourceMetrics{},
	}, nil
}

func (s *PcapFileSource) Start(ctx context.Context) error {
	packetSource := gopacket.NewPacketSource(s.reader, s.reader.LinkType())
	logrus.Infof("Started reading packets from file: %s", s.filename)

	go func() {
		defer close(s.done)
		defer close(s.output)
		defer s.file.Close()

		var packetCount int64
		for {
			select {
			case <-ctx.Done():
				logrus.Info("Stopping packet reading due to context cancellation")
				return
			default:
			}

			packet, err := packetSource.NextPacket()
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					logrus.Info("Reached end of pcap file")
					return
				}
				s.stats.IncrementErrorCount()
				logrus.Warnf("Error reading packet: %v", err)
				continue
			}

			packetCount++
			p, ok := decodePacket(packet, packetCount)
			if !ok {
				s.stats.IncrementPacketsSkipped()
				continue
			}
			s.stats.IncrementPacketsCaptured()
			s.stats.AddBytesProcessed(uint64(len(packet.Data())))

			select {
			case s.output <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// decodePacket 把 IP 帧转换为待评估的报文，非 IP 帧返回 false
func decodePacket(packet gopacket.Packet, seq int64) (*types.Packet, bool) {
	p := &types.Packet{
		ID:   fmt.Sprintf("pkt-%d", seq),
		Size: packet.Metadata().CaptureLength,
	}
	if p.Size == 0 {
		p.Size = len(packet.Data())
	}

	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		p.SrcIP, p.DstIP = ip.SrcIP.String(), ip.DstIP.String()
	case *layers.IPv6:
		p.SrcIP, p.DstIP = ip.SrcIP.String(), ip.DstIP.String()
	default:
		return nil, false
	}

	switch tl := packet.TransportLayer().(type) {
	case *layers.TCP:
		p.SrcPort, p.DstPort = int(tl.SrcPort), int(tl.DstPort)
		p.Protocol = classify(types.ProtocolTCP, p.SrcPort, p.DstPort)
	case *layers.UDP:
		p.SrcPort, p.DstPort = int(tl.SrcPort), int(tl.DstPort)
		p.Protocol = classify(types.ProtocolUDP, p.SrcPort, p.DstPort)
	default:
		if packet.Layer(layers.LayerTypeICMPv4) == nil && packet.Layer(layers.LayerTypeICMPv6) == nil {
			return nil, false
		}
		p.Protocol = types.ProtocolICMP
	}

	if app := packet.ApplicationLayer(); app != nil {
		p.Payload = string(app.Payload())
	}
	return p, true
}

func classify(transport types.Protocol, srcPort, dstPort int) types.Protocol {
	if proto, ok := wellKnownPorts[dstPort]; ok {
		return proto
	}
	if proto, ok := wellKnownPorts[srcPort]; ok {
		return proto
	}
	return transport
}

func (s *PcapFileSource) Output() <-chan *types.Packet {
	return s.output
}

func (s *PcapFileSource) GetStats() *metrics.SourceMetrics {
	return s.stats
}

func (s *PcapFileSource) WaitForCompletion() <-chan struct{} {
	return s.done
}
