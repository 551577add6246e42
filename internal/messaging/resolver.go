package messaging

import (
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/allisson/outbox/internal/errors"
)

// TransportType tags the shape of an inbound transport message.
type TransportType string

const (
	// TransportBrokerRecord identifies broker records carrying header lists.
	TransportBrokerRecord TransportType = "broker_record"
	// TransportGenericMessage identifies messages carrying a header map.
	TransportGenericMessage TransportType = "generic_message"
)

// DefaultEventIDHeader is the header carrying the correlation UUID.
const DefaultEventIDHeader = "outbox-event-id"

// RecordHeader is one key-value header of a broker record.
type RecordHeader struct {
	Key   string
	Value []byte
}

// BrokerRecord is the shape of an inbound broker record.
type BrokerRecord struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers []RecordHeader
}

// GenericMessage is the shape of an inbound message with a plain header map.
type GenericMessage struct {
	Headers map[string]string
	Body    []byte
}

// EventIDResolver extracts the correlation UUID the idempotent consumer keys
// on from an inbound transport message.
type EventIDResolver interface {
	ResolveEventID(message any) (uuid.UUID, error)
}

// BrokerRecordResolver resolves event ids from broker record headers.
type BrokerRecordResolver struct {
	headerKey string
}

// NewBrokerRecordResolver creates a resolver reading the given header key,
// falling back to DefaultEventIDHeader when blank.
func NewBrokerRecordResolver(headerKey string) *BrokerRecordResolver {
	if headerKey == "" {
		headerKey = DefaultEventIDHeader
	}
	return &BrokerRecordResolver{headerKey: headerKey}
}

// ResolveEventID extracts the event id from a *BrokerRecord.
func (r *BrokerRecordResolver) ResolveEventID(message any) (uuid.UUID, error) {
	record, ok := message.(*BrokerRecord)
	if !ok {
		return uuid.Nil, apperrors.Wrap(apperrors.ErrInvalidInput, "message is not a broker record")
	}

	for _, header := range record.Headers {
		if header.Key == r.headerKey {
			id, err := uuid.ParseBytes(header.Value)
			if err != nil {
				return uuid.Nil, apperrors.Wrap(err, "failed to parse event id header")
			}
			return id, nil
		}
	}

	return uuid.Nil, apperrors.Wrap(
		apperrors.ErrNotFound,
		fmt.Sprintf("header %q not present on broker record", r.headerKey),
	)
}

// GenericMessageResolver resolves event ids from a plain header map.
type GenericMessageResolver struct {
	headerKey string
}

// NewGenericMessageResolver creates a resolver reading the given header key,
// falling back to DefaultEventIDHeader when blank.
func NewGenericMessageResolver(headerKey string) *GenericMessageResolver {
	if headerKey == "" {
		headerKey = DefaultEventIDHeader
	}
	return &GenericMessageResolver{headerKey: headerKey}
}

// ResolveEventID extracts the event id from a *GenericMessage.
func (r *GenericMessageResolver) ResolveEventID(message any) (uuid.UUID, error) {
	msg, ok := message.(*GenericMessage)
	if !ok {
		return uuid.Nil, apperrors.Wrap(apperrors.ErrInvalidInput, "message is not a generic message")
	}

	value, present := msg.Headers[r.headerKey]
	if !present {
		return uuid.Nil, apperrors.Wrap(
			apperrors.ErrNotFound,
			fmt.Sprintf("header %q not present on message", r.headerKey),
		)
	}

	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, apperrors.Wrap(err, "failed to parse event id header")
	}
	return id, nil
}

// ResolverRegistry maps transport types to their id resolvers. The transport
// tag is resolved once per message at the boundary.
type ResolverRegistry struct {
	resolvers map[TransportType]EventIDResolver
}

// NewResolverRegistry creates a registry pre-populated with the default
// broker-record and generic-message resolvers.
func NewResolverRegistry() *ResolverRegistry {
	return &ResolverRegistry{
		resolvers: map[TransportType]EventIDResolver{
			TransportBrokerRecord:   NewBrokerRecordResolver(""),
			TransportGenericMessage: NewGenericMessageResolver(""),
		},
	}
}

// Register adds or replaces the resolver for a transport type.
func (reg *ResolverRegistry) Register(transport TransportType, resolver EventIDResolver) {
	reg.resolvers[transport] = resolver
}

// Resolve returns the resolver for a transport type.
func (reg *ResolverRegistry) Resolve(transport TransportType) (EventIDResolver, error) {
	resolver, ok := reg.resolvers[transport]
	if !ok {
		return nil, apperrors.Wrap(
			apperrors.ErrNotFound,
			fmt.Sprintf("no event id resolver registered for transport %q", transport),
		)
	}
	return resolver, nil
}
