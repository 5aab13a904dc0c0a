package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/srg/fa15bridge/internal/device"
)

// FakeAdvertisement is a static device.Advertisement.
type FakeAdvertisement struct {
	Name          string   `json:"name"`
	Address       string   `json:"address"`
	Rssi          int      `json:"rssi"`
	ServiceUUIDs  []string `json:"services,omitempty"`
	IsConnectable bool     `json:"connectable"`
}

func (a *FakeAdvertisement) LocalName() string  { return a.Name }
func (a *FakeAdvertisement) RSSI() int          { return a.Rssi }
func (a *FakeAdvertisement) Addr() string       { return a.Address }
func (a *FakeAdvertisement) Connectable() bool  { return a.IsConnectable }
func (a *FakeAdvertisement) Services() []string { return device.NormalizeUUIDs(a.ServiceUUIDs) }

// AdvertisementBuilder builds fake advertisements with a fluent API.
type AdvertisementBuilder struct {
	adv FakeAdvertisement
}

// NewAdvertisementBuilder starts a connectable advertisement with no name.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: FakeAdvertisement{IsConnectable: true}}
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.Name = name
	return b
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.Address = addr
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.Rssi = rssi
	return b
}

// WithServices adds service UUIDs in short ("180A") or full form.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.adv.ServiceUUIDs = append(b.adv.ServiceUUIDs, uuids...)
	return b
}

func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.IsConnectable = c
	return b
}

// FromJSON fills builder fields from a JSON string with format support.
// Panics on invalid JSON as this is intended for test data setup.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)
	if err := json.Unmarshal([]byte(jsonStr), &b.adv); err != nil {
		panic(fmt.Sprintf("FromJSON: failed to unmarshal advertisement: %v", err))
	}
	return b
}

// Build returns a copy of the configured advertisement.
func (b *AdvertisementBuilder) Build() *FakeAdvertisement {
	adv := b.adv
	adv.ServiceUUIDs = append([]string(nil), b.adv.ServiceUUIDs...)
	return &adv
}

// AdvertisementArrayBuilder collects advertisements for a FakeScanner.
//
//	scanner := NewAdvertisementArrayBuilder().
//	    WithNewAdvertisement().WithName("FA15-1").WithAddress("aa:..").Build().
//	    WithAdvertisements(existing...).
//	    BuildScanner()
type AdvertisementArrayBuilder struct {
	advertisements []device.Advertisement
}

func NewAdvertisementArrayBuilder() *AdvertisementArrayBuilder {
	return &AdvertisementArrayBuilder{}
}

// WithAdvertisements adds pre-built advertisements.
func (ab *AdvertisementArrayBuilder) WithAdvertisements(ads ...device.Advertisement) *AdvertisementArrayBuilder {
	ab.advertisements = append(ab.advertisements, ads...)
	return ab
}

// WithNewAdvertisement returns a builder whose Build adds the advertisement and returns to the array builder.
func (ab *AdvertisementArrayBuilder) WithNewAdvertisement() *AdvertisementArrayBuilderItem {
	return &AdvertisementArrayBuilderItem{AdvertisementBuilder: NewAdvertisementBuilder(), parent: ab}
}

// Build returns the collected advertisements.
func (ab *AdvertisementArrayBuilder) Build() []device.Advertisement {
	return append([]device.Advertisement(nil), ab.advertisements...)
}

// BuildScanner returns a FakeScanner replaying the collected advertisements.
func (ab *AdvertisementArrayBuilder) BuildScanner() *FakeScanner {
	return &FakeScanner{Adverts: ab.Build()}
}

// AdvertisementArrayBuilderItem wraps AdvertisementBuilder to return to the parent array builder.
type AdvertisementArrayBuilderItem struct {
	*AdvertisementBuilder
	parent *AdvertisementArrayBuilder
}

// Build adds the advertisement to the parent array and returns the array builder
func (abi *AdvertisementArrayBuilderItem) Build() *AdvertisementArrayBuilder {
	abi.parent.advertisements = append(abi.parent.advertisements, abi.AdvertisementBuilder.Build())
	return abi.parent
}
