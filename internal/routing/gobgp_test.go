package routing

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	api "github.com/osrg/gobgp/v4/api"
)

type mockBGPBackend struct {
	failAddPath    bool
	failDeletePath bool
	failAddPeer    bool
	failStartBgp   bool
	failStopBgp    bool

	addPathCalls    int
	deletePathCalls int
}

func (m *mockBGPBackend) Serve() {}

func (m *mockBGPBackend) StartBgp(ctx context.Context, r *api.StartBgpRequest) error {
	if m.failStartBgp {
		return errors.New("start bgp failed")
	}
	return nil
}

func (m *mockBGPBackend) AddPeer(ctx context.Context, r *api.AddPeerRequest) error {
	if m.failAddPeer {
		return errors.New("add peer failed")
	}
	return nil
}

func (m *mockBGPBackend) AddPath(ctx context.Context, r *api.AddPathRequest) (*api.AddPathResponse, error) {
	m.addPathCalls++
	if m.failAddPath {
		return nil, errors.New("add path failed")
	}
	return &api.AddPathResponse{}, nil
}

func (m *mockBGPBackend) DeletePath(ctx context.Context, r *api.DeletePathRequest) error {
	m.deletePathCalls++
	if m.failDeletePath {
		return errors.New("delete path failed")
	}
	return nil
}

func (m *mockBGPBackend) StopBgp(ctx context.Context, r *api.StopBgpRequest) error {
	if m.failStopBgp {
		return errors.New("stop bgp failed")
	}
	return nil
}

func TestAdapter_AnnounceAndWithdraw(t *testing.T) {
	mock := &mockBGPBackend{}
	a := &Adapter{bgpServer: mock, log: slog.Default()}
	ctx := context.Background()

	if err := a.Announce(ctx, "203.0.113.100"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	mock.failAddPath = true
	if err := a.Announce(ctx, "203.0.113.100"); err == nil {
		t.Error("expected error from failed AddPath")
	}
	mock.failAddPath = false

	if err := a.Withdraw(ctx, "203.0.113.100"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	mock.failDeletePath = true
	if err := a.Withdraw(ctx, "203.0.113.100"); err == nil {
		t.Error("expected error from failed DeletePath")
	}
}

func TestAdapter_Start(t *testing.T) {
	mock := &mockBGPBackend{}
	a := &Adapter{bgpServer: mock, log: slog.Default()}
	ctx := context.Background()

	if err := a.Start(ctx, 65001, 65002, "10.0.0.1", "10.0.0.2"); err != nil {
		t.Errorf("expected no error from Start, got %v", err)
	}

	mock.failAddPeer = true
	if err := a.Start(ctx, 65001, 65002, "10.0.0.1", "10.0.0.2"); err == nil {
		t.Error("expected error from failed AddPeer")
	}
}

func TestAdapter_Stop(t *testing.T) {
	mock := &mockBGPBackend{}
	a := &Adapter{bgpServer: mock, log: slog.Default()}
	if err := a.Stop(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	mock.failStopBgp = true
	if err := a.Stop(); err == nil {
		t.Error("expected error from failed StopBgp")
	}
}

func TestNewAdapter(t *testing.T) {
	a := NewAdapter(nil)
	if a == nil || a.bgpServer == nil {
		t.Fatal("NewAdapter failed")
	}
}
