// Package tstest builds small transport streams for tests.
package tstest

import (
	"github.com/DevLARLEY/gopolyv/ts"
)

const (
	PMTPID = 0x1000

	StreamTypeH264 = 0x1b
	StreamTypeAAC  = 0x0f
)

// Stream is an elementary stream announced by the PMT.
type Stream struct {
	Type uint8
	PID  uint16
}

// CRC32 is the MPEG-2 CRC of PSI sections.
func CRC32(b []byte) uint32 {
	crc := uint32(0xffffffff)
	for _, v := range b {
		crc ^= uint32(v) << 24
		for i := 0; i < 8; i++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04c11db7
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func section(tableID uint8, idExt uint16, body []byte) []byte {
	length := 5 + len(body) + 4
	s := []byte{
		tableID, 0xb0 | byte(length>>8), byte(length),
		byte(idExt >> 8), byte(idExt), 0xc1, 0x00, 0x00,
	}
	s = append(s, body...)
	crc := CRC32(s)
	return append(s, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

func psiPacket(pid uint16, sec []byte) []byte {
	b := make([]byte, ts.PacketSize)
	for i := range b {
		b[i] = 0xff
	}
	b[0] = ts.SyncByte
	b[1] = 0x40 | byte(pid>>8)&0x1f
	b[2] = byte(pid)
	b[3] = 0x10
	b[4] = 0
	copy(b[5:], sec)
	return b
}

// PAT returns a packet announcing a single program with its PMT on PMTPID.
func PAT() []byte {
	return psiPacket(0, section(0x00, 1, []byte{0x00, 0x01, 0xe0 | byte(PMTPID>>8), byte(PMTPID & 0xff)}))
}

// PMT returns a packet announcing streams. The first stream carries the PCR.
func PMT(streams ...Stream) []byte {
	pcr := uint16(0x1fff)
	if len(streams) > 0 {
		pcr = streams[0].PID
	}

	body := []byte{0xe0 | byte(pcr>>8), byte(pcr), 0xf0, 0x00}
	for _, s := range streams {
		body = append(body, s.Type, 0xe0|byte(s.PID>>8), byte(s.PID), 0xf0, 0x00)
	}
	return psiPacket(PMTPID, section(0x02, 1, body))
}

// PES wraps es in a PES packet with a PTS. A bounded packet carries its
// length, an unbounded one has PES_packet_length 0.
func PES(streamID uint8, es []byte, bounded bool) []byte {
	b := []byte{0x00, 0x00, 0x01, streamID, 0x00, 0x00, 0x80, 0x80, 0x05, 0x21, 0x00, 0x01, 0x00, 0x01}
	b = append(b, es...)
	if bounded {
		ts.SetPacketLength(b, uint16(len(b)-6))
	}
	return b
}

// PCRField is an adaptation field carrying only a PCR.
func PCRField() []byte {
	return []byte{0x07, 0x10, 0x00, 0x00, 0x00, 0x01, 0x7e, 0x00}
}

// Packets packetizes pes on pid and returns the packets with their continuity
// counters starting at cc.
func Packets(pid uint16, af, pes []byte, cc uint8) [][]byte {
	packets, err := ts.Packetize(ts.Header{PID: pid, HasPayload: true}, af, pes, cc)
	if err != nil {
		panic(err)
	}
	return packets
}

// Join concatenates packets.
func Join(packets ...[]byte) []byte {
	var out []byte
	for _, p := range packets {
		out = append(out, p...)
	}
	return out
}

// Payloads reassembles the PES packets carried on pid.
func Payloads(stream []byte, pid uint16) ([][]byte, error) {
	packets, err := ts.Split(stream)
	if err != nil {
		return nil, err
	}

	var out [][]byte
	for _, raw := range packets {
		p, err := ts.ParsePacket(raw)
		if err != nil {
			return nil, err
		}
		if p.Header.PID != pid || !p.Header.HasPayload {
			continue
		}
		if p.Header.PayloadUnitStartIndicator {
			out = append(out, nil)
		}
		if len(out) == 0 {
			continue
		}
		out[len(out)-1] = append(out[len(out)-1], p.Payload...)
	}
	return out, nil
}

// ContinuityCounters lists the counters of the payload packets on pid.
func ContinuityCounters(stream []byte, pid uint16) []uint8 {
	var out []uint8
	for off := 0; off+ts.PacketSize <= len(stream); off += ts.PacketSize {
		b := stream[off:]
		if uint16(b[1]&0x1f)<<8|uint16(b[2]) == pid && b[3]&0x10 != 0 {
			out = append(out, b[3]&0x0f)
		}
	}
	return out
}
