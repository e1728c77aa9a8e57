package window

import "time"

// Status is a point-in-time snapshot of the tracker's token ledger.
type Status struct {
	SessionID     string
	Model         Profile
	TotalTokens   int
	SystemTokens  int
	MessageTokens int
	ToolTokens    int
	ItemCount     int
	MaxTokens     int

	// UsagePercent is TotalTokens over MaxTokens. Values above 1.0 are
	// reported as-is: an over-budget window is a signal, not an error.
	UsagePercent float64
}

// Tracker owns the ordered context log for one conversation and keeps
// per-bucket token totals in step with it. It is not safe for concurrent
// use; callers serialize access.
type Tracker struct {
	cfg       Config
	sessionID string
	profile   Profile
	maxTokens int
	estimator TokenEstimator

	items  []*Item
	nextID int

	systemTokens  int
	messageTokens int
	toolTokens    int

	now func() time.Time
}

// NewTracker builds an empty tracker for the configured session. The
// model selector resolves to a capacity profile here, once; unknown
// selectors fall back to the default profile.
func NewTracker(cfg Config) *Tracker {
	cfg = cfg.withDefaults()
	profile := ResolveProfile(cfg.Model)
	return &Tracker{
		cfg:       cfg,
		sessionID: cfg.SessionID,
		profile:   profile,
		maxTokens: profile.MaxTokens(),
		estimator: NewCharEstimator(cfg.CharsPerToken),
		nextID:    1,
		now:       time.Now,
	}
}

// SessionID returns the session label given at construction.
func (t *Tracker) SessionID() string { return t.sessionID }

// Profile returns the resolved capacity profile.
func (t *Tracker) Profile() Profile { return t.profile }

// AddSystemPrompt appends a system prompt. System items always carry
// importance 1.0; pinning is the caller's choice.
func (t *Tracker) AddSystemPrompt(text string, pinned bool) int {
	return t.add(KindSystem, text, "", pinned)
}

// AddUserMessage appends a user message.
func (t *Tracker) AddUserMessage(text string) int {
	return t.add(KindUser, text, "", false)
}

// AddAssistantMessage appends an assistant message.
func (t *Tracker) AddAssistantMessage(text string) int {
	return t.add(KindAssistant, text, "", false)
}

// AddToolCall appends a tool invocation record.
func (t *Tracker) AddToolCall(text, toolName string) int {
	return t.add(KindToolCall, text, toolName, false)
}

// AddToolResult appends a tool output. Tool results get the lowest
// default importance and are the first candidates for eviction.
func (t *Tracker) AddToolResult(text, toolName string) int {
	return t.add(KindToolResult, text, toolName, false)
}

func (t *Tracker) add(kind Kind, content, toolName string, pinned bool) int {
	it := &Item{
		ID:         t.nextID,
		Kind:       kind,
		Content:    content,
		ToolName:   toolName,
		TokenCount: t.estimator.Estimate(content),
		Pinned:     pinned,
		Importance: kind.defaultImportance(),
		CreatedAt:  t.now(),
	}
	t.nextID++
	t.items = append(t.items, it)
	t.bucketAdd(kind, it.TokenCount)
	return it.ID
}

// RemoveItem removes the item with the given id and reports whether it
// existed. Direct removal ignores pinning: pins protect against policy
// eviction, not against an explicit caller decision.
func (t *Tracker) RemoveItem(id int) bool {
	for i, it := range t.items {
		if it.ID == id {
			t.bucketAdd(it.Kind, -it.TokenCount)
			t.items = append(t.items[:i], t.items[i+1:]...)
			return true
		}
	}
	return false
}

// Items returns the live items in insertion order as value copies, so
// callers cannot mutate tracker state through the snapshot.
func (t *Tracker) Items() []Item {
	out := make([]Item, len(t.items))
	for i, it := range t.items {
		out[i] = *it
	}
	return out
}

// Len returns the number of live items.
func (t *Tracker) Len() int { return len(t.items) }

// Status snapshots the ledger. The bucket totals always sum to
// TotalTokens.
func (t *Tracker) Status() Status {
	total := t.totalTokens()
	return Status{
		SessionID:     t.sessionID,
		Model:         t.profile,
		TotalTokens:   total,
		SystemTokens:  t.systemTokens,
		MessageTokens: t.messageTokens,
		ToolTokens:    t.toolTokens,
		ItemCount:     len(t.items),
		MaxTokens:     t.maxTokens,
		UsagePercent:  float64(total) / float64(t.maxTokens),
	}
}

func (t *Tracker) totalTokens() int {
	return t.systemTokens + t.messageTokens + t.toolTokens
}

func (t *Tracker) usagePercent() float64 {
	return float64(t.totalTokens()) / float64(t.maxTokens)
}

// bucketAdd adjusts the bucket total for kind by delta, which may be
// negative.
func (t *Tracker) bucketAdd(kind Kind, delta int) {
	switch kind.Category() {
	case CategorySystem:
		t.systemTokens += delta
	case CategoryMessage:
		t.messageTokens += delta
	case CategoryTool:
		t.toolTokens += delta
	}
}

// updateContent replaces an item's content and re-estimates its token
// count, keeping the bucket totals consistent. Only the compactor calls
// this.
func (t *Tracker) updateContent(it *Item, content string) {
	old := it.TokenCount
	it.Content = content
	it.TokenCount = t.estimator.Estimate(content)
	t.bucketAdd(it.Kind, it.TokenCount-old)
}

// removeMatching removes every item match reports true for, in a single
// order-preserving pass, and returns the audit result.
func (t *Tracker) removeMatching(match func(*Item) bool) PruneResult {
	var res PruneResult
	kept := t.items[:0]
	for _, it := range t.items {
		if match(it) {
			res.PrunedItems = append(res.PrunedItems, *it)
			res.TokensFreed += it.TokenCount
			t.bucketAdd(it.Kind, -it.TokenCount)
			continue
		}
		kept = append(kept, it)
	}
	t.items = kept
	res.ItemsRemoved = len(res.PrunedItems)
	return res
}
