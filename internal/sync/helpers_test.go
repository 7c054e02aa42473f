package sync

import (
	"context"
	"fmt"
	"sync"

	"aliasflare/backend/internal/cloudflare"
	"aliasflare/backend/internal/domain"
)

// fakeAPI 内存版的远端规则源，按区域保存规则。
type fakeAPI struct {
	mu          sync.Mutex
	rulesByZone map[string][]cloudflare.Rule
	listErr     error
	listCalls   int
	listGate    chan struct{} // 非 nil 时 ListRules 阻塞等待放行
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{rulesByZone: make(map[string][]cloudflare.Rule)}
}

func forwardRule(tag, address, target string, enabled bool) cloudflare.Rule {
	return cloudflare.Rule{
		Tag:      tag,
		Matchers: []cloudflare.Matcher{{Type: "literal", Field: "to", Value: address}},
		Actions:  []cloudflare.Action{{Type: "forward", Value: []string{target}}},
		Enabled:  enabled,
	}
}

func (f *fakeAPI) setRules(zoneID string, rules []cloudflare.Rule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rulesByZone[zoneID] = rules
}

func (f *fakeAPI) ListRules(ctx context.Context, zoneID string) ([]cloudflare.Rule, error) {
	f.mu.Lock()
	f.listCalls++
	gate := f.listGate
	err := f.listErr
	rules := append([]cloudflare.Rule(nil), f.rulesByZone[zoneID]...)
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (f *fakeAPI) CreateRule(ctx context.Context, zoneID, address, target string) (*cloudflare.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rule := forwardRule(fmt.Sprintf("tag-%s-%d", zoneID, len(f.rulesByZone[zoneID])), address, target, true)
	f.rulesByZone[zoneID] = append([]cloudflare.Rule{rule}, f.rulesByZone[zoneID]...)
	return &rule, nil
}

func (f *fakeAPI) UpdateRule(ctx context.Context, zoneID string, rule cloudflare.Rule) (*cloudflare.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rules := f.rulesByZone[zoneID]
	for i := range rules {
		if rules[i].Tag == rule.Tag {
			rules[i] = rule
			return &rule, nil
		}
	}
	return nil, fmt.Errorf("rule %s not found", rule.Tag)
}

func (f *fakeAPI) DeleteRule(ctx context.Context, zoneID, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rules := f.rulesByZone[zoneID]
	for i := range rules {
		if rules[i].Tag == tag {
			f.rulesByZone[zoneID] = append(rules[:i], rules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("rule %s not found", tag)
}

// fakeReplica 内存版复制存储。
type fakeReplica struct {
	mu            sync.Mutex
	snapshot      []domain.ReplicatedAlias
	snapshotErr   error
	snapshotCalls int
	snapshotGate  chan struct{} // 非 nil 时 Snapshot 阻塞等待放行
	published     []domain.AliasRecord
}

func (f *fakeReplica) Snapshot(ctx context.Context) ([]domain.ReplicatedAlias, error) {
	f.mu.Lock()
	f.snapshotCalls++
	gate := f.snapshotGate
	err := f.snapshotErr
	snapshot := append([]domain.ReplicatedAlias(nil), f.snapshot...)
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (f *fakeReplica) Publish(ctx context.Context, alias *domain.AliasRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, *alias)
	return nil
}

func (f *fakeReplica) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotCalls
}
