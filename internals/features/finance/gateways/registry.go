package gateways

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
	paymodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
)

// Registry maps provider names to adapters and each payment method to its
// default provider.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	defaults map[paymodel.PaymentMethod]string
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: map[string]Adapter{},
		defaults: map[paymodel.PaymentMethod]string{},
	}
}

// Register adds an adapter. The first adapter registered for a method
// becomes that method's default.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := strings.ToLower(a.Name())
	r.adapters[name] = a
	for _, m := range a.Methods() {
		if _, ok := r.defaults[m]; !ok {
			r.defaults[m] = name
		}
	}
}

// SetDefault overrides the provider used for method when the caller does not pick one.
func (r *Registry) SetDefault(method paymodel.PaymentMethod, provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	provider = strings.ToLower(strings.TrimSpace(provider))
	a, ok := r.adapters[provider]
	if !ok {
		return fmt.Errorf("%w: provider %q is not registered", finerr.ErrConfig, provider)
	}
	if !supports(a, method) {
		return fmt.Errorf("%w: provider %q does not handle %s", finerr.ErrConfig, provider, method)
	}
	r.defaults[method] = provider
	return nil
}

func (r *Registry) Lookup(provider string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(provider))]
	return a, ok
}

// Resolve picks the adapter for a payment. An explicit provider must
// support the method.
func (r *Registry) Resolve(method paymodel.PaymentMethod, provider string) (Adapter, error) {
	if !method.Valid() {
		return nil, finerr.NewValidationError("method", "unsupported payment method")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	name := strings.ToLower(strings.TrimSpace(provider))
	if name == "" {
		name = r.defaults[method]
	}
	a, ok := r.adapters[name]
	if !ok {
		return nil, finerr.NewValidationError("provider", fmt.Sprintf("no provider configured for %s", method))
	}
	if !supports(a, method) {
		return nil, finerr.NewValidationError("provider", fmt.Sprintf("%s does not handle %s", name, method))
	}
	return a, nil
}

// CancelCheckout closes the provider side of a payment that was failed
// locally, so the payer can no longer complete it. Payments that never
// reached the provider and providers without a Canceler are skipped.
func (r *Registry) CancelCheckout(ctx context.Context, p *paymodel.Payment) error {
	if r == nil || p == nil || p.PaymentPendingAt == nil {
		return nil
	}
	a, ok := r.Lookup(p.PaymentProvider)
	if !ok {
		return nil
	}
	c, ok := a.(Canceler)
	if !ok {
		return nil
	}
	return c.Cancel(ctx, p.PaymentExternalReference)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func supports(a Adapter, method paymodel.PaymentMethod) bool {
	for _, m := range a.Methods() {
		if m == method {
			return true
		}
	}
	return false
}
