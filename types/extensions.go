package types

// ResourceServiceExtension is implemented by extensions that enrich resource
// declarations (discovery documents, 402 bodies) before they are served.
// TransportContext is the transport-level request context; extensions assert
// it to the narrow interface they need.
type ResourceServiceExtension interface {
	Key() string
	EnrichDeclaration(declaration interface{}, transportContext interface{}) interface{}
}
