package client

import (
	"context"
	"errors"
	"strings"
	"sync"
)

type ComposeState string

const (
	StateIdle              ComposeState = "idle"
	StateComposing         ComposeState = "composing"
	StateSubmitting        ComposeState = "submitting"
	StateSucceeded         ComposeState = "succeeded"
	StateChallengeRequired ComposeState = "challenge_required"
	StateChallengeFailed   ComposeState = "challenge_failed"
	StateFailed            ComposeState = "failed"
)

// writer is the write contract the composer drives.
type writer interface {
	PostComment(ctx context.Context, input PostCommentInput) (Comment, error)
}

// Composer runs one composition attempt through the write protocol. The
// composed content survives every challenge round and is cleared only on
// success or cancel. The held challenge token is always the most recently
// issued one; a rejection's replacement token overwrites it immediately.
type Composer struct {
	mu        sync.Mutex
	repo      writer
	scope     Scope
	seriesID  string
	parentID  *string
	state     ComposeState
	content   string
	challenge *Challenge
	lastErr   error
	// gen is bumped by Cancel; a response carrying an older generation is
	// dropped so a late result cannot resurrect an abandoned attempt.
	gen       uint64
	onSuccess func(ctx context.Context, comment Comment)
}

func newComposer(repo writer, scope Scope, seriesID string, parentID *string, onSuccess func(context.Context, Comment)) *Composer {
	return &Composer{
		repo:      repo,
		scope:     scope,
		seriesID:  seriesID,
		parentID:  parentID,
		state:     StateIdle,
		onSuccess: onSuccess,
	}
}

func (c *Composer) State() ComposeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Composer) Content() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content
}

// Challenge returns the currently held puzzle, or nil outside a challenge
// round.
func (c *Composer) Challenge() *Challenge {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.challenge == nil {
		return nil
	}
	held := *c.challenge
	return &held
}

func (c *Composer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// SetContent records the user's draft. First keystroke moves Idle to
// Composing.
func (c *Composer) SetContent(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.content = text
	if c.state == StateIdle && text != "" {
		c.state = StateComposing
	}
}

// Cancel abandons the attempt: content and any held challenge are
// discarded and the composer returns to Idle. A response from a submit
// still in flight when Cancel runs is discarded when it lands.
func (c *Composer) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.state = StateIdle
	c.content = ""
	c.challenge = nil
	c.lastErr = nil
}

// Submit runs one round of the write protocol. answer is the challenge
// answer when resubmitting, empty otherwise. Validation failures are caught
// before any network call and leave the state untouched.
func (c *Composer) Submit(ctx context.Context, answer string) error {
	c.mu.Lock()
	if strings.TrimSpace(c.content) == "" {
		c.mu.Unlock()
		return &ValidationError{Reason: "content must not be empty"}
	}

	input := PostCommentInput{
		Scope:    c.scope,
		Content:  c.content,
		ParentID: c.parentID,
	}
	if c.challenge != nil {
		input.CaptchaToken = c.challenge.Token
		input.CaptchaAnswer = answer
	}
	c.state = StateSubmitting
	gen := c.gen
	c.mu.Unlock()

	comment, err := c.repo.PostComment(ctx, input)

	c.mu.Lock()
	if c.gen != gen {
		// Canceled while in flight; the attempt no longer exists.
		c.mu.Unlock()
		return ErrStaleResponse
	}
	if err != nil {
		c.applyFailureLocked(err)
		c.mu.Unlock()
		return err
	}

	c.state = StateSucceeded
	c.content = ""
	c.challenge = nil
	c.lastErr = nil
	onSuccess := c.onSuccess
	c.mu.Unlock()

	if onSuccess != nil {
		onSuccess(ctx, comment)
	}
	return nil
}

// applyFailureLocked routes a write failure to the right state. Challenge
// rejections retain the content and swap in the freshly issued token; any
// other failure moves to plain Failed without touching the challenge UI.
func (c *Composer) applyFailureLocked(err error) {
	c.lastErr = err

	var required *ChallengeRequiredError
	if errors.As(err, &required) {
		c.state = StateChallengeRequired
		held := required.Challenge
		c.challenge = &held
		return
	}

	var failed *ChallengeFailedError
	if errors.As(err, &failed) {
		c.state = StateChallengeFailed
		held := failed.Challenge
		c.challenge = &held
		return
	}

	c.state = StateFailed
}
