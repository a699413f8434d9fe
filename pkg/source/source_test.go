package source

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/haolipeng/firewall_ledger/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	srcMAC = net.HardwareAddr{0x00, 0x0c, 0x29, 0x01, 0x02, 0x03}
	dstMAC = net.HardwareAddr{0x00, 0x0c, 0x29, 0x0a, 0x0b, 0x0c}
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func ipv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.IP{10, 0, 0, 5},
		DstIP:    net.IP{10, 0, 0, 1},
	}
}

func eth(t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: t}
}

func tcpFrame(t *testing.T, dstPort int, payload string) []byte {
	ip := ipv4(layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: 40000, DstPort: layers.TCPPort(dstPort), Seq: 1, PSH: true, ACK: true, Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return serialize(t, eth(layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload(payload))
}

func udpFrame(t *testing.T, dstPort int, payload string) []byte {
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 40001, DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, eth(layers.EthernetTypeIPv4), ip, udp, gopacket.Payload(payload))
}

func icmpFrame(t *testing.T) []byte {
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1}
	return serialize(t, eth(layers.EthernetTypeIPv4), ipv4(layers.IPProtocolICMPv4), icmp)
}

func arpFrame(t *testing.T) []byte {
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: []byte{10, 0, 0, 5},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 1},
	}
	return serialize(t, eth(layers.EthernetTypeARP), arp)
}

// writePcap 生成离线抓包文件
func writePcap(t *testing.T, frames ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	ts := time.Date(2024, 3, 18, 15, 30, 0, 0, time.UTC)
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	return path
}

func drain(t *testing.T, ch <-chan *types.Packet) []*types.Packet {
	t.Helper()
	var out []*types.Packet
	timeout := time.After(5 * time.Second)
	for {
		select {
		case p, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, p)
		case <-timeout:
			t.Fatal("source did not close its output")
		}
	}
}

func TestPcapFileSourceDecodesFrames(t *testing.T) {
	httpFrame := tcpFrame(t, 80, "GET /../../etc/passwd HTTP/1.1")
	path := writePcap(t,
		httpFrame,
		arpFrame(t),
		udpFrame(t, 9999, "hello"),
		icmpFrame(t),
		tcpFrame(t, 8443, "plain"),
	)

	src, err := NewPcapFileSource(path, 16)
	require.NoError(t, err)
	require.NoError(t, src.Start(context.Background()))

	packets := drain(t, src.Output())
	<-src.WaitForCompletion()
	require.Len(t, packets, 4)

	http := packets[0]
	assert.Equal(t, "pkt-1", http.ID)
	assert.Equal(t, "10.0.0.5", http.SrcIP)
	assert.Equal(t, "10.0.0.1", http.DstIP)
	assert.Equal(t, 40000, http.SrcPort)
	assert.Equal(t, 80, http.DstPort)
	assert.Equal(t, types.ProtocolHTTP, http.Protocol)
	assert.Equal(t, "GET /../../etc/passwd HTTP/1.1", http.Payload)
	assert.Equal(t, len(httpFrame), http.Size)

	// ARP 帧被跳过，但仍占用序号
	udp := packets[1]
	assert.Equal(t, "pkt-3", udp.ID)
	assert.Equal(t, types.ProtocolUDP, udp.Protocol)
	assert.Equal(t, "hello", udp.Payload)

	icmp := packets[2]
	assert.Equal(t, types.ProtocolICMP, icmp.Protocol)
	assert.Zero(t, icmp.DstPort)

	assert.Equal(t, types.ProtocolTCP, packets[3].Protocol)

	stats := src.GetStats()
	assert.Equal(t, uint64(4), stats.PacketsCaptured)
	assert.Equal(t, uint64(1), stats.PacketsSkipped)
	assert.Zero(t, stats.ErrorCount)
}

func TestPcapFileSourceErrors(t *testing.T) {
	_, err := NewPcapFileSource(filepath.Join(t.TempDir(), "missing.pcap"), 1)
	assert.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.pcap")
	require.NoError(t, os.WriteFile(garbage, []byte("not a capture file at all"), 0o644))
	_, err = NewPcapFileSource(garbage, 1)
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		transport types.Protocol
		src, dst  int
		want      types.Protocol
	}{
		{"http", types.ProtocolTCP, 50000, 80, types.ProtocolHTTP},
		{"https", types.ProtocolTCP, 50000, 443, types.ProtocolHTTPS},
		{"ftp", types.ProtocolTCP, 50000, 21, types.ProtocolFTP},
		{"ssh reply", types.ProtocolTCP, 22, 50000, types.ProtocolSSH},
		{"dns", types.ProtocolUDP, 50000, 53, types.ProtocolDNS},
		{"plain udp", types.ProtocolUDP, 50000, 9999, types.ProtocolUDP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.transport, tt.src, tt.dst))
		})
	}
}

func TestSliceSource(t *testing.T) {
	packets := []types.Packet{
		{ID: "a", Size: 10},
		{ID: "b", Size: 20},
	}
	src := NewSliceSource(packets, 0)
	packets[0].ID = "mutated"

	require.NoError(t, src.Start(context.Background()))
	out := drain(t, src.Output())
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
	assert.Equal(t, uint64(30), src.GetStats().BytesProcessed)
}

func TestSliceSourceCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := NewSliceSource(make([]types.Packet, 10), 0)
	require.NoError(t, src.Start(ctx))

	<-src.Output()
	cancel()

	select {
	case <-src.WaitForCompletion():
	case <-time.After(5 * time.Second):
		t.Fatal("source ignored cancellation")
	}
}
