package bazaar

// TransportContext abstracts the transport layer so bazaar does not depend
// on any concrete HTTP package. http.HTTPRequestContext satisfies it
// structurally.
type TransportContext interface {
	TransportMethod() string
}

type bazaarResourceServerExtension struct{}

// ResourceServerExtension is the server-side extension that binds each
// declared endpoint's discovery info to the request method observed at the
// transport.
var ResourceServerExtension = &bazaarResourceServerExtension{}

func (e *bazaarResourceServerExtension) Key() string {
	return ExtensionKey
}

// EnrichDeclaration stamps the transport method into the declaration's
// input and marks the method required in its schema. Declarations of other
// shapes pass through untouched.
func (e *bazaarResourceServerExtension) EnrichDeclaration(
	declaration interface{},
	transportContext interface{},
) interface{} {
	tc, ok := transportContext.(TransportContext)
	if !ok {
		return declaration
	}
	extension, ok := declaration.(DiscoveryExtension)
	if !ok {
		return declaration
	}

	method := tc.TransportMethod()
	switch input := extension.Info.Input.(type) {
	case QueryInput:
		input.Method = QueryParamMethod(method)
		extension.Info.Input = input
	case BodyInput:
		input.Method = BodyMethod(method)
		extension.Info.Input = input
	}

	if properties, ok := extension.Schema["properties"].(map[string]interface{}); ok {
		if input, ok := properties["input"].(map[string]interface{}); ok {
			if required, ok := input["required"].([]string); ok {
				hasMethod := false
				for _, r := range required {
					if r == "method" {
						hasMethod = true
						break
					}
				}
				if !hasMethod {
					input["required"] = append(required, "method")
				}
			}
		}
	}

	return extension
}
