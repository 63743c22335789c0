package http

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	x402 "github.com/x402labs/x402-go"
)

// PaywallConfig customizes the browser paywall page.
type PaywallConfig struct {
	// AppName is shown in the paywall heading.
	AppName string
	// AppLogo is an optional logo URL.
	AppLogo string
	// CurrentURL overrides the resource URL shown to the user.
	CurrentURL string
	// Testnet renders the testnet warning banner.
	Testnet bool
}

// PaywallProvider generates HTML for browser-facing 402 responses.
// Register a custom implementation via the paywall builder to override the
// built-in EVM/SVM templates.
type PaywallProvider interface {
	GenerateHTML(paymentRequired x402.PaymentRequired, config *PaywallConfig) (string, error)
}

// PaywallNetworkHandler handles paywall HTML generation for one network
// family. PaywallBuilder composes handlers into a single PaywallProvider.
type PaywallNetworkHandler interface {
	// Supports reports whether this handler can render the requirement.
	Supports(requirement x402.PaymentRequirements) bool

	// GenerateHTML renders the paywall for the given requirement.
	GenerateHTML(requirement x402.PaymentRequirements, paymentRequired x402.PaymentRequired, config *PaywallConfig) (string, error)
}

// EVMPaywallHandler renders the paywall for EVM networks (eip155:*).
type EVMPaywallHandler struct{}

func (h *EVMPaywallHandler) Supports(requirement x402.PaymentRequirements) bool {
	return strings.HasPrefix(string(requirement.Network), "eip155:")
}

func (h *EVMPaywallHandler) GenerateHTML(_ x402.PaymentRequirements, paymentRequired x402.PaymentRequired, config *PaywallConfig) (string, error) {
	return injectPaywallConfig(evmPaywallTemplate, paymentRequired, config)
}

// SVMPaywallHandler renders the paywall for Solana networks (solana:*).
type SVMPaywallHandler struct{}

func (h *SVMPaywallHandler) Supports(requirement x402.PaymentRequirements) bool {
	return strings.HasPrefix(string(requirement.Network), "solana:")
}

func (h *SVMPaywallHandler) GenerateHTML(_ x402.PaymentRequirements, paymentRequired x402.PaymentRequired, config *PaywallConfig) (string, error) {
	return injectPaywallConfig(svmPaywallTemplate, paymentRequired, config)
}

// PaywallBuilder composes multiple PaywallNetworkHandlers into a single
// PaywallProvider.
type PaywallBuilder struct {
	handlers []PaywallNetworkHandler
	config   *PaywallConfig
}

// NewPaywallBuilder creates a new PaywallBuilder.
func NewPaywallBuilder() *PaywallBuilder {
	return &PaywallBuilder{}
}

// WithNetwork adds a network handler to the builder.
func (b *PaywallBuilder) WithNetwork(handler PaywallNetworkHandler) *PaywallBuilder {
	b.handlers = append(b.handlers, handler)
	return b
}

// WithConfig sets default paywall configuration for the builder.
func (b *PaywallBuilder) WithConfig(config *PaywallConfig) *PaywallBuilder {
	b.config = config
	return b
}

// Build creates a PaywallProvider dispatching to the first handler that
// supports an accepted requirement.
func (b *PaywallBuilder) Build() PaywallProvider {
	return &compositePaywallProvider{
		handlers: b.handlers,
		config:   b.config,
	}
}

type compositePaywallProvider struct {
	handlers []PaywallNetworkHandler
	config   *PaywallConfig
}

func (p *compositePaywallProvider) GenerateHTML(paymentRequired x402.PaymentRequired, config *PaywallConfig) (string, error) {
	effectiveConfig := config
	if effectiveConfig == nil {
		effectiveConfig = p.config
	}

	for _, req := range paymentRequired.Accepts {
		for _, handler := range p.handlers {
			if handler.Supports(req) {
				return handler.GenerateHTML(req, paymentRequired, effectiveConfig)
			}
		}
	}

	return "", fmt.Errorf("no paywall handler for any accepted network")
}

// DefaultPaywallProvider creates a PaywallProvider with the built-in EVM and
// SVM handlers.
func DefaultPaywallProvider() PaywallProvider {
	return NewPaywallBuilder().
		WithNetwork(&EVMPaywallHandler{}).
		WithNetwork(&SVMPaywallHandler{}).
		Build()
}

// RenderPaywall renders the default paywall for a 402 response.
func RenderPaywall(config *PaywallConfig, paymentRequired x402.PaymentRequired) (string, error) {
	return DefaultPaywallProvider().GenerateHTML(paymentRequired, config)
}

type paywallData struct {
	AppName    string
	AppLogo    string
	CurrentURL string
	Testnet    bool
	ConfigJSON template.JS
}

// injectPaywallConfig embeds the 402 body and display configuration into a
// paywall template. The payment data travels as a JSON blob under
// window.x402 so the page script can construct and sign the payment.
func injectPaywallConfig(tmpl *template.Template, paymentRequired x402.PaymentRequired, config *PaywallConfig) (string, error) {
	if config == nil {
		config = &PaywallConfig{}
	}

	appName := config.AppName
	if appName == "" {
		appName = "Protected Content"
	}
	currentURL := config.CurrentURL
	if currentURL == "" && paymentRequired.Resource != nil {
		currentURL = paymentRequired.Resource.URL
	}

	blob, err := json.Marshal(map[string]interface{}{
		"paymentRequired": paymentRequired,
		"appName":         appName,
		"appLogo":         config.AppLogo,
		"currentUrl":      currentURL,
		"testnet":         config.Testnet,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal paywall config: %w", err)
	}

	var sb strings.Builder
	err = tmpl.Execute(&sb, paywallData{
		AppName:    appName,
		AppLogo:    config.AppLogo,
		CurrentURL: currentURL,
		Testnet:    config.Testnet,
		ConfigJSON: template.JS(blob),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render paywall: %w", err)
	}
	return sb.String(), nil
}

var evmPaywallTemplate = template.Must(template.New("evm-paywall").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Payment Required - {{.AppName}}</title>
<style>
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",sans-serif;background:#f7f8fa;margin:0;display:flex;align-items:center;justify-content:center;min-height:100vh}
.card{background:#fff;border-radius:12px;box-shadow:0 2px 12px rgba(0,0,0,.08);padding:2.5rem;max-width:420px;text-align:center}
.card img{max-height:48px;margin-bottom:1rem}
h1{font-size:1.25rem;margin:0 0 .5rem}
p{color:#5b616e;margin:0 0 1.5rem}
button{background:#0052ff;color:#fff;border:0;border-radius:8px;padding:.75rem 2rem;font-size:1rem;cursor:pointer}
button:disabled{opacity:.5;cursor:default}
.testnet{background:#fff7e6;color:#8a6d1a;border-radius:6px;padding:.5rem;font-size:.85rem;margin-bottom:1rem}
#status{margin-top:1rem;font-size:.9rem;color:#5b616e}
</style>
</head>
<body>
<div class="card">
{{if .AppLogo}}<img src="{{.AppLogo}}" alt="{{.AppName}}">{{end}}
<h1>{{.AppName}}</h1>
{{if .Testnet}}<div class="testnet">Testnet payment &mdash; no real funds move.</div>{{end}}
<p>This content requires a one-time payment. Connect an EVM wallet to continue.</p>
<button id="pay">Connect wallet &amp; pay</button>
<div id="status"></div>
</div>
<script>
window.x402 = {{.ConfigJSON}};
(function(){
  var btn=document.getElementById("pay"),status=document.getElementById("status");
  btn.addEventListener("click",async function(){
    if(!window.ethereum){status.textContent="No EVM wallet detected.";return}
    btn.disabled=true;status.textContent="Awaiting wallet...";
    try{
      var accepts=window.x402.paymentRequired.accepts[0];
      var accounts=await window.ethereum.request({method:"eth_requestAccounts"});
      var detail={requirement:accepts,account:accounts[0]};
      document.dispatchEvent(new CustomEvent("x402:pay",{detail:detail}));
      status.textContent="Sign the payment in your wallet.";
    }catch(e){status.textContent=e.message||"Payment failed.";btn.disabled=false}
  });
})();
</script>
</body>
</html>
`))

var svmPaywallTemplate = template.Must(template.New("svm-paywall").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Payment Required - {{.AppName}}</title>
<style>
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",sans-serif;background:#f7f8fa;margin:0;display:flex;align-items:center;justify-content:center;min-height:100vh}
.card{background:#fff;border-radius:12px;box-shadow:0 2px 12px rgba(0,0,0,.08);padding:2.5rem;max-width:420px;text-align:center}
.card img{max-height:48px;margin-bottom:1rem}
h1{font-size:1.25rem;margin:0 0 .5rem}
p{color:#5b616e;margin:0 0 1.5rem}
button{background:#9945ff;color:#fff;border:0;border-radius:8px;padding:.75rem 2rem;font-size:1rem;cursor:pointer}
button:disabled{opacity:.5;cursor:default}
.testnet{background:#fff7e6;color:#8a6d1a;border-radius:6px;padding:.5rem;font-size:.85rem;margin-bottom:1rem}
#status{margin-top:1rem;font-size:.9rem;color:#5b616e}
</style>
</head>
<body>
<div class="card">
{{if .AppLogo}}<img src="{{.AppLogo}}" alt="{{.AppName}}">{{end}}
<h1>{{.AppName}}</h1>
{{if .Testnet}}<div class="testnet">Devnet payment &mdash; no real funds move.</div>{{end}}
<p>This content requires a one-time payment. Connect a Solana wallet to continue.</p>
<button id="pay">Connect wallet &amp; pay</button>
<div id="status"></div>
</div>
<script>
window.x402 = {{.ConfigJSON}};
(function(){
  var btn=document.getElementById("pay"),status=document.getElementById("status");
  btn.addEventListener("click",async function(){
    var provider=window.phantom&&window.phantom.solana?window.phantom.solana:window.solana;
    if(!provider){status.textContent="No Solana wallet detected.";return}
    btn.disabled=true;status.textContent="Awaiting wallet...";
    try{
      var accepts=window.x402.paymentRequired.accepts[0];
      var resp=await provider.connect();
      var detail={requirement:accepts,account:resp.publicKey.toString()};
      document.dispatchEvent(new CustomEvent("x402:pay",{detail:detail}));
      status.textContent="Sign the payment in your wallet.";
    }catch(e){status.textContent=e.message||"Payment failed.";btn.disabled=false}
  });
})();
</script>
</body>
</html>
`))
