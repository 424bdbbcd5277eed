// Package observability provides a metrics extension that records ledger
// lifecycle event counts via a pluggable MetricFactory.
package observability

import (
	"context"
	"math/big"

	"github.com/xraph/tokenledger/account"
	"github.com/xraph/tokenledger/plugin"
	"github.com/xraph/tokenledger/transfer"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin          = (*MetricsExtension)(nil)
	_ plugin.OnInit          = (*MetricsExtension)(nil)
	_ plugin.OnWalletCreated = (*MetricsExtension)(nil)
	_ plugin.OnMint          = (*MetricsExtension)(nil)
	_ plugin.OnTransfer      = (*MetricsExtension)(nil)
	_ plugin.OnBurn          = (*MetricsExtension)(nil)
	_ plugin.OnOwnerChanged  = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records ledger-wide lifecycle metrics.
// Register it as a plugin to automatically track settlement activity.
type MetricsExtension struct {
	factory MetricFactory

	// Account metrics
	WalletsCreated Counter

	// Settlement metrics
	Mints     Counter
	Transfers Counter
	Burns     Counter

	// Amount distributions, observed in base units. Amounts beyond float64
	// precision degrade gracefully; counters stay exact.
	MintAmount     Histogram
	TransferAmount Histogram
	BurnAmount     Histogram

	// Governance metrics
	OwnerChanges Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		WalletsCreated: factory.Counter("tokenledger.wallets.created"),

		Mints:     factory.Counter("tokenledger.mints"),
		Transfers: factory.Counter("tokenledger.transfers"),
		Burns:     factory.Counter("tokenledger.burns"),

		MintAmount:     factory.Histogram("tokenledger.mint.amount"),
		TransferAmount: factory.Histogram("tokenledger.transfer.amount"),
		BurnAmount:     factory.Histogram("tokenledger.burn.amount"),

		OwnerChanges: factory.Counter("tokenledger.owner.changes"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// OnWalletCreated implements plugin.OnWalletCreated.
func (m *MetricsExtension) OnWalletCreated(_ context.Context, _ account.Identity) error {
	m.WalletsCreated.Inc()
	return nil
}

// OnMint implements plugin.OnMint.
func (m *MetricsExtension) OnMint(_ context.Context, rec *transfer.Record) error {
	m.Mints.Inc()
	m.MintAmount.Observe(amountValue(rec))
	return nil
}

// OnTransfer implements plugin.OnTransfer.
func (m *MetricsExtension) OnTransfer(_ context.Context, rec *transfer.Record) error {
	m.Transfers.Inc()
	m.TransferAmount.Observe(amountValue(rec))
	return nil
}

// OnBurn implements plugin.OnBurn.
func (m *MetricsExtension) OnBurn(_ context.Context, rec *transfer.Record) error {
	m.Burns.Inc()
	m.BurnAmount.Observe(amountValue(rec))
	return nil
}

// OnOwnerChanged implements plugin.OnOwnerChanged.
func (m *MetricsExtension) OnOwnerChanged(_ context.Context, _, _ account.Identity) error {
	m.OwnerChanges.Inc()
	return nil
}

func amountValue(rec *transfer.Record) float64 {
	v, _ := new(big.Float).SetInt(rec.Amount.BigInt()).Float64()
	return v
}
