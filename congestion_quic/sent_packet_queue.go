package congestion_quic

import (
	"github.com/sagernet/quic-go/congestion"
	"github.com/sagernet/sing-cubic/controller"
)

type sentPacketEntry struct {
	packet  controller.Packet
	present bool
}

// sentPacketQueue holds the retransmittable packets still tracked by the
// controller, indexed by packet number. Packet numbers grow monotonically, so
// adding at the end and removing from the front are amortized O(1).
type sentPacketQueue struct {
	entries      []sentPacketEntry
	firstPacket  congestion.PacketNumber
	presentCount int
}

func newSentPacketQueue() *sentPacketQueue {
	return &sentPacketQueue{}
}

// Add appends packet, filling the gap of skipped packet numbers. Packets at
// or below the last added number are rejected.
func (q *sentPacketQueue) Add(packet controller.Packet) bool {
	if q.IsEmpty() {
		q.entries = append(q.entries[:0], sentPacketEntry{packet: packet, present: true})
		q.firstPacket = packet.PacketNumber
		q.presentCount = 1
		return true
	}
	if packet.PacketNumber <= q.lastPacket() {
		return false
	}
	for next := q.lastPacket() + 1; next < packet.PacketNumber; next++ {
		q.entries = append(q.entries, sentPacketEntry{})
	}
	q.entries = append(q.entries, sentPacketEntry{packet: packet, present: true})
	q.presentCount++
	return true
}

// Get returns the packet sent with packetNumber, if it is still tracked.
func (q *sentPacketQueue) Get(packetNumber congestion.PacketNumber) (controller.Packet, bool) {
	entry := q.entry(packetNumber)
	if entry == nil {
		return controller.Packet{}, false
	}
	return entry.packet, true
}

// Remove stops tracking packetNumber and returns the packet it was sent as.
func (q *sentPacketQueue) Remove(packetNumber congestion.PacketNumber) (controller.Packet, bool) {
	entry := q.entry(packetNumber)
	if entry == nil {
		return controller.Packet{}, false
	}
	packet := entry.packet
	*entry = sentPacketEntry{}
	q.presentCount--
	if packetNumber == q.firstPacket {
		q.cleanup()
	}
	return packet, true
}

func (q *sentPacketQueue) IsEmpty() bool {
	return q.presentCount == 0
}

func (q *sentPacketQueue) Len() int {
	return q.presentCount
}

func (q *sentPacketQueue) entry(packetNumber congestion.PacketNumber) *sentPacketEntry {
	if q.IsEmpty() || packetNumber < q.firstPacket {
		return nil
	}
	offset := int(packetNumber - q.firstPacket)
	if offset >= len(q.entries) || !q.entries[offset].present {
		return nil
	}
	return &q.entries[offset]
}

func (q *sentPacketQueue) lastPacket() congestion.PacketNumber {
	return q.firstPacket + congestion.PacketNumber(len(q.entries)) - 1
}

// cleanup drops the removed slots at the front.
func (q *sentPacketQueue) cleanup() {
	for len(q.entries) > 0 && !q.entries[0].present {
		q.entries = q.entries[1:]
		q.firstPacket++
	}
	if len(q.entries) == 0 {
		q.entries = nil
	}
}
