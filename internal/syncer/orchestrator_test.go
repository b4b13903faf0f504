package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunwatch/solarsync/internal/db"
	"github.com/sunwatch/solarsync/internal/vendors"
)

func TestSyncPlants_BoundedConcurrency(t *testing.T) {
	vendorList := make([]*db.Vendor, 25)
	for i := range vendorList {
		vendorList[i] = testVendor(i)
	}
	store := newFakeStore(vendorList...)

	var inFlight, maxSeen int32
	factory := func(v *db.Vendor) (vendors.Adapter, error) {
		return &fakeAdapter{
			listDelay: 20 * time.Millisecond,
			inFlight:  &inFlight,
			maxSeen:   &maxSeen,
		}, nil
	}

	o := newTestOrchestrator(store, factory)
	summary, err := o.SyncPlants(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 25, summary.TotalVendors)
	assert.Equal(t, 25, summary.Successful)
	assert.Len(t, summary.Results, 25)
	assert.LessOrEqual(t, maxSeen, int32(10), "no more than one window of vendors may be in flight")
	assert.Greater(t, maxSeen, int32(1), "vendors inside a window must run concurrently")
}

func TestSyncPlants_VendorIsolation(t *testing.T) {
	vendorList := make([]*db.Vendor, 25)
	for i := range vendorList {
		vendorList[i] = testVendor(i)
	}
	store := newFakeStore(vendorList...)

	failing := vendorList[7].ID
	factory := func(v *db.Vendor) (vendors.Adapter, error) {
		if v.ID == failing {
			return &fakeAdapter{
				listErr: &vendors.AuthError{Vendor: v.Name, Reason: "login rejected"},
			}, nil
		}
		return &fakeAdapter{plants: somePlants(2)}, nil
	}

	o := newTestOrchestrator(store, factory)
	summary, err := o.SyncPlants(context.Background())

	require.Error(t, err, "a failed vendor must surface a non-success signal")
	require.NotNil(t, summary)
	assert.Equal(t, 24, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 24*2, summary.Created, "healthy vendors must persist despite the failure")

	for _, r := range summary.Results {
		if r.VendorID == failing {
			assert.False(t, r.Success)
			assert.Contains(t, r.Error, "authentication failed")
		} else {
			assert.True(t, r.Success)
		}
	}
}

func TestSyncPlants_ZeroPlantsIsSuccess(t *testing.T) {
	store := newFakeStore(testVendor(1))
	factory := func(v *db.Vendor) (vendors.Adapter, error) {
		return &fakeAdapter{}, nil
	}

	o := newTestOrchestrator(store, factory)
	summary, err := o.SyncPlants(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 0, summary.Synced)
}

func TestSyncPlants_PanicIsContained(t *testing.T) {
	store := newFakeStore(testVendor(1), testVendor(2))
	factory := func(v *db.Vendor) (vendors.Adapter, error) {
		if v.ID == "vendor-01" {
			panic("adapter exploded")
		}
		return &fakeAdapter{plants: somePlants(1)}, nil
	}

	o := newTestOrchestrator(store, factory)
	summary, err := o.SyncPlants(context.Background())

	require.Error(t, err)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
}
