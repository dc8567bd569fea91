package enum

type ShipmentStatus string

const (
	ShipmentStatusNone             ShipmentStatus = ""
	ShipmentStatusReceivedDelivery ShipmentStatus = "Received Delivery"
	ShipmentStatusEADDispatched    ShipmentStatus = "EAD dispatched"
)

// Rank orders the status progression. A shipment status only ever advances,
// it never regresses.
func (s ShipmentStatus) Rank() int {
	switch s {
	case ShipmentStatusReceivedDelivery:
		return 1
	case ShipmentStatusEADDispatched:
		return 2
	default:
		return 0
	}
}

func (s ShipmentStatus) String() string {
	return string(s)
}
