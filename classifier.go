package udssniffer

import "github.com/sunnypilot/opendbc-go/pkg/uds"

// classify converts a reassembled session payload into a typed UDS Message
// (C2, spec.md §4.2). Called with the Reassembler's mu held; it only
// reads the session, never mutates it.
func classify(session *Session) Message {
	data := session.data[:session.ReceivedLength]
	b0 := data[0]

	msg := Message{
		Timestamp: session.LastTimestamp,
		TxAddr:    session.TxAddr,
		RxAddr:    session.RxAddr,
		Bus:       session.Bus,
	}

	var body []byte
	switch {
	case b0 == uds.NegativeResponseServiceID && len(data) >= 3:
		msg.IsNegativeResponse = true
		msg.ServiceID = data[1]
		msg.NegativeResponseCode = data[2]
		body = data[3:]
	case b0 >= uds.PositiveResponseOffset:
		msg.IsResponse = true
		msg.ServiceID = b0 - uds.PositiveResponseOffset
		body = classifyDataIdentifier(&msg, data)
	default:
		msg.ServiceID = b0
		body = classifyDataIdentifier(&msg, data)
	}

	msg.Data = append([]byte(nil), body...)
	return msg
}

// classifyDataIdentifier extracts a 16-bit big-endian data identifier for
// ReadDataByIdentifier/WriteDataByIdentifier messages and returns the body
// that follows it; for any other service it returns the body following just
// the service-ID byte. It never returns more than len(data)-1 bytes.
func classifyDataIdentifier(msg *Message, data []byte) []byte {
	if uds.IsReadWriteByIdentifier(msg.ServiceID) && len(data) >= 3 {
		msg.HasDataIdentifier = true
		msg.DataIdentifier = uint16(data[1])<<8 | uint16(data[2])
		return data[3:]
	}
	return data[1:]
}
