package environment

import "context"

// MultiProvider tries each provider in order, returning the first hit.
type MultiProvider struct {
	providers []Provider
}

func NewMultiProvider(providers ...Provider) *MultiProvider {
	return &MultiProvider{providers: providers}
}

func (p *MultiProvider) Get(ctx context.Context, name string) (string, bool) {
	for _, provider := range p.providers {
		if value, found := provider.Get(ctx, name); found {
			return value, true
		}
	}
	return "", false
}
