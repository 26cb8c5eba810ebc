package domain

// Calculator resolves VAT per country and computes gross amounts.
type Calculator interface {
	Resolve(country string) (Quote, error)
	Breakdown(net int64, country string) (Breakdown, error)
}
