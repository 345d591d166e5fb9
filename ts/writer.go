package ts

// Packetize splits a PES packet into transport packets on the PID of tmpl.
// af goes into the first packet, the last one is stuffed. Continuity counters
// start at cc.
func Packetize(tmpl Header, af []byte, pes []byte, cc uint8) ([][]byte, error) {
	var packets [][]byte

	first := true
	for first || len(pes) > 0 {
		h := tmpl
		h.PayloadUnitStartIndicator = first
		h.ContinuityCounter = cc & 0x0f

		p := &Packet{Header: h}
		if first {
			p.AdaptationField = af
		}

		n := min(maxPayloadSize-len(p.AdaptationField), len(pes))
		p.Payload = pes[:n]

		b, err := p.Marshal()
		if err != nil {
			return nil, err
		}
		packets = append(packets, b)

		pes = pes[n:]
		cc++
		first = false
	}

	return packets, nil
}
