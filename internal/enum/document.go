package enum

type DocumentKind string

const (
	DocumentKindDelivery DocumentKind = "Delivery"
	DocumentKindEAD      DocumentKind = "EAD"
)

func (k DocumentKind) String() string {
	return string(k)
}
