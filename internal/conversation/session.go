// Package conversation runs the guided listing conversation: six steps from
// role to OTP, then submission and an optional follow-up chat.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/listing-lead-assistant/internal/cities"
	"github.com/wolfman30/listing-lead-assistant/internal/leads"
	"github.com/wolfman30/listing-lead-assistant/internal/listing"
	"github.com/wolfman30/listing-lead-assistant/internal/observability/metrics"
	"github.com/wolfman30/listing-lead-assistant/internal/otp"
	"github.com/wolfman30/listing-lead-assistant/internal/validation"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

const (
	defaultBrand         = "SquareYards"
	defaultReminderDelay = 20 * time.Second

	msgCitiesFailed   = "Error loading cities. Please try again."
	msgOTPSent        = "OTP sent successfully to your phone number."
	msgOTPResent      = "OTP resent successfully."
	msgResendFailed   = "Failed to resend OTP. Please try again."
	msgResendCooldown = "Please wait before resending OTP."
	msgEditNumber     = "Please enter your correct phone number."
	msgFollowUp       = "Feel free to ask any questions about properties or real estate 🏠 in your city!"
	msgChatFallback   = "Sorry, something went wrong. Please try again."
)

// Phase is the coarse state of a session.
type Phase string

const (
	PhaseCollecting Phase = "collecting"
	PhaseSubmitting Phase = "submitting"
	PhaseChatting   Phase = "chatting"
	PhaseFailed     Phase = "failed"
)

// Directory is the city directory view a session needs.
type Directory interface {
	Load(ctx context.Context) error
	Loaded() bool
	Has(name string) bool
	HasID(id string) bool
	Lookup(name string) (cities.Entry, bool)
	Suggest(query string, limit int) []cities.Entry
}

// Verifier is the per-session OTP manager. *otp.Manager satisfies it.
type Verifier interface {
	Send(ctx context.Context, phone string) error
	Resend(ctx context.Context, phone string) error
	Verify(ctx context.Context, phone, code string) (string, error)
	Reset()
	Status() otp.Status
	Bypass() bool
}

// Submitter sends the completed form. *leads.Gateway satisfies it.
type Submitter interface {
	Submit(ctx context.Context, form listing.LeadForm, dir leads.CityIndex) leads.Result
}

// Assistant answers follow-up questions after a successful submission.
type Assistant interface {
	Answer(ctx context.Context, userID, city, question string) (string, error)
}

// Settings tune a session.
type Settings struct {
	Brand         string
	ReminderDelay time.Duration
}

// Deps are the collaborators of one session.
type Deps struct {
	Shell     Shell
	Directory Directory
	OTP       Verifier
	Gateway   Submitter
	Assistant Assistant
	Logger    *logging.Logger
	Metrics   *metrics.FunnelMetrics
}

type scheduleFunc func(d time.Duration, f func()) (stop func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Session owns the answer set and the active step of one conversation.
// Network calls are made without holding the lock; each captures the
// generation first and its result is dropped if the generation moved.
type Session struct {
	id        string
	shell     Shell
	dir       Directory
	otp       Verifier
	gateway   Submitter
	assistant Assistant
	logger    *logging.Logger
	metrics   *metrics.FunnelMetrics
	settings  Settings
	schedule  scheduleFunc
	now       func() time.Time

	mu           sync.Mutex
	generation   uint64
	index        int
	phase        Phase
	form         listing.LeadForm
	busy         bool
	stepSeq      uint64
	stopReminder func() bool
	lastActive   time.Time
	closed       bool
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func withScheduler(f scheduleFunc) Option {
	return func(s *Session) { s.schedule = f }
}

// NewSession returns a session in the collecting phase. Call Start to
// render the first step.
func NewSession(id string, deps Deps, settings Settings, opts ...Option) *Session {
	if settings.Brand == "" {
		settings.Brand = defaultBrand
	}
	if settings.ReminderDelay <= 0 {
		settings.ReminderDelay = defaultReminderDelay
	}
	s := &Session{
		id:        id,
		shell:     deps.Shell,
		dir:       deps.Directory,
		otp:       deps.OTP,
		gateway:   deps.Gateway,
		assistant: deps.Assistant,
		logger:    logging.OrDefault(deps.Logger).With("session_id", id),
		metrics:   deps.Metrics,
		settings:  settings,
		schedule:  afterFunc,
		now:       time.Now,
		phase:     PhaseCollecting,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastActive = s.now()
	return s
}

// ID is the registry key.
func (s *Session) ID() string { return s.id }

// Shell returns the shell the session renders to.
func (s *Session) Shell() Shell { return s.shell }

// Start greets the user, loads the city directory and renders the first step.
// A failed city load is reported but does not stop the conversation.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	s.shell.ShowMessage(s.greeting())
	s.mu.Unlock()

	s.loadCities(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.renderLocked()
}

func (s *Session) greeting() string {
	return fmt.Sprintf("👋 Hi! Let’s list your property on %s. 🚀", s.settings.Brand)
}

func (s *Session) loadCities(ctx context.Context) {
	if s.dir.Loaded() {
		return
	}
	if err := s.dir.Load(ctx); err != nil {
		s.logger.Warn("city directory load failed", "error", err)
		s.mu.Lock()
		s.shell.ShowMessage(msgCitiesFailed)
		s.mu.Unlock()
	}
}

// Advance answers the active step with value.
func (s *Session) Advance(ctx context.Context, field listing.Field, value string) error {
	s.mu.Lock()
	switch {
	case s.phase != PhaseCollecting:
		s.mu.Unlock()
		return ErrConversationClosed
	case s.busy:
		s.mu.Unlock()
		return ErrBusy
	}
	step := steps[s.index]
	if step.Field != field {
		s.mu.Unlock()
		return ErrWrongStep
	}
	s.touchLocked()
	s.cancelReminderLocked()

	if step.Kind != KindChoice {
		value = strings.TrimSpace(value)
	}
	if err := validation.Check(field, value, step.Options, s.dir); err != nil {
		var ve *validation.Error
		if errors.As(err, &ve) {
			s.shell.ShowError(ve.Message)
		}
		s.shell.PlayFeedbackSound(SoundError)
		s.mu.Unlock()
		return err
	}

	s.form.Set(field, value)
	if field == listing.FieldCity {
		entry, _ := s.dir.Lookup(value)
		s.form.CityName = entry.Name
		s.form.CityID = entry.ID
	}

	switch field {
	case listing.FieldNumber:
		return s.sendOTPLocked(ctx, value)
	case listing.FieldOTP:
		return s.verifyOTPLocked(ctx, value)
	}
	s.shell.PlayFeedbackSound(SoundChat)
	s.nextLocked()
	s.mu.Unlock()
	return nil
}

// sendOTPLocked is entered locked and returns unlocked.
func (s *Session) sendOTPLocked(ctx context.Context, phone string) error {
	if s.otp.Bypass() {
		s.form.OTPCode = otp.BypassCode
		id, err := s.otp.Verify(ctx, phone, otp.BypassCode)
		if err != nil || id == "" {
			s.logger.Warn("bypass verification failed, using phone as user id", "error", err)
			id = phone
		}
		s.form.VerifiedUserID = id
		s.shell.PlayFeedbackSound(SoundChat)
		return s.submitLocked(ctx)
	}

	gen := s.beginLocked()
	s.mu.Unlock()
	err := s.otp.Send(ctx, phone)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.endLocked(gen) || errors.Is(err, otp.ErrStale) {
		return ErrStale
	}
	if err != nil {
		s.form.ClearPhone()
		s.showOTPErrorLocked(err)
		return err
	}
	s.shell.ShowMessage(msgOTPSent)
	s.shell.PlayFeedbackSound(SoundChat)
	s.nextLocked()
	return nil
}

// verifyOTPLocked is entered locked and returns unlocked.
func (s *Session) verifyOTPLocked(ctx context.Context, code string) error {
	phone := s.form.PhoneNumber
	gen := s.beginLocked()
	s.mu.Unlock()
	id, err := s.otp.Verify(ctx, phone, code)
	s.mu.Lock()
	if !s.endLocked(gen) || errors.Is(err, otp.ErrStale) {
		s.mu.Unlock()
		return ErrStale
	}
	if err != nil {
		s.form.OTPCode = ""
		s.showOTPErrorLocked(err)
		s.mu.Unlock()
		return err
	}
	s.form.VerifiedUserID = id
	return s.submitLocked(ctx)
}

func (s *Session) showOTPErrorLocked(err error) {
	var oe *otp.Error
	if errors.As(err, &oe) {
		s.shell.ShowError(oe.Message)
	} else {
		s.shell.ShowError(err.Error())
	}
	s.shell.PlayFeedbackSound(SoundError)
}

// submitLocked is entered locked and returns unlocked.
func (s *Session) submitLocked(ctx context.Context) error {
	s.cancelReminderLocked()
	s.phase = PhaseSubmitting
	form := s.form
	gen := s.beginLocked()
	s.mu.Unlock()

	res := s.gateway.Submit(ctx, form, s.dir)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.endLocked(gen) {
		return ErrStale
	}
	if !res.OK() {
		s.phase = PhaseFailed
		s.shell.PlayFeedbackSound(SoundError)
		s.shell.ShowTerminal(false, res.Message)
		return res.Err()
	}
	s.phase = PhaseChatting
	s.shell.ShowMessage(res.Message)
	s.shell.ShowMessage(fmt.Sprintf("📞 Our expert will call you soon to list your property in %s 🏠 – get started with %s today! 🚀", form.CityName, s.settings.Brand))
	s.shell.ShowTerminal(true, msgFollowUp)
	return nil
}

// EditNumber returns from the OTP step to the phone step. Any verification
// still in flight is discarded.
func (s *Session) EditNumber(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseCollecting || s.index != otpStep {
		return ErrNotAtOTPStep
	}
	s.touchLocked()
	s.cancelReminderLocked()
	s.generation++
	if s.busy {
		s.busy = false
		s.shell.HideTyping()
	}
	s.otp.Reset()
	s.form.ClearPhone()
	s.shell.PlayFeedbackSound(SoundChat)
	s.shell.ShowMessage(msgEditNumber)
	s.index = numberStep
	s.renderLocked()
	return nil
}

// ResendOTP asks for a fresh code while on the OTP step.
func (s *Session) ResendOTP(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseCollecting || s.index != otpStep {
		s.mu.Unlock()
		return ErrNotAtOTPStep
	}
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.touchLocked()
	phone := s.form.PhoneNumber
	gen := s.beginLocked()
	s.mu.Unlock()

	err := s.otp.Resend(ctx, phone)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.endLocked(gen) || errors.Is(err, otp.ErrStale) {
		return ErrStale
	}
	switch {
	case otp.IsKind(err, otp.KindCooldown):
		s.shell.ShowError(msgResendCooldown)
	case err != nil:
		s.shell.ShowError(msgResendFailed)
		s.shell.PlayFeedbackSound(SoundError)
	default:
		s.shell.ShowMessage(msgOTPResent)
	}
	return err
}

// Reset clears the form and OTP state and starts over at the first step.
func (s *Session) Reset(ctx context.Context) {
	s.mu.Lock()
	s.generation++
	s.cancelReminderLocked()
	if s.busy {
		s.busy = false
		s.shell.HideTyping()
	}
	s.phase = PhaseCollecting
	s.index = 0
	s.form = listing.LeadForm{}
	s.otp.Reset()
	s.touchLocked()
	s.shell.ShowMessage(s.greeting())
	s.busy = true
	gen := s.generation
	s.mu.Unlock()

	s.loadCities(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	s.busy = false
	s.renderLocked()
}

// SuggestCities returns up to five cities starting with query and pushes
// them to the shell. Typing counts as activity.
func (s *Session) SuggestCities(ctx context.Context, query string) []cities.Entry {
	s.loadCities(ctx)
	entries := s.dir.Suggest(query, cities.DefaultSuggestionLimit)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.cancelReminderLocked()
	s.shell.ShowCities(entries)
	return entries
}

// NoteActivity cancels the idle reminder for the current step.
func (s *Session) NoteActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.cancelReminderLocked()
}

// Chat forwards a follow-up question once the lead has been accepted.
func (s *Session) Chat(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	s.mu.Lock()
	switch {
	case s.phase != PhaseChatting:
		s.mu.Unlock()
		return ErrNotChatting
	case s.busy:
		s.mu.Unlock()
		return ErrBusy
	case text == "":
		s.mu.Unlock()
		return nil
	}
	s.touchLocked()
	userID := s.form.VerifiedUserID
	if userID == "" {
		userID = s.form.PhoneNumber
	}
	city := s.form.CityName
	gen := s.beginLocked()
	s.mu.Unlock()

	var reply string
	var err error
	if s.assistant != nil {
		reply, err = s.assistant.Answer(ctx, userID, city, text)
	} else {
		err = errors.New("assistant not configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.endLocked(gen) {
		return ErrStale
	}
	if err != nil || strings.TrimSpace(reply) == "" {
		s.logger.Warn("follow-up chat failed", "error", err)
		reply = msgChatFallback
	}
	s.shell.PlayFeedbackSound(SoundChat)
	s.shell.ShowMessage(reply)
	return nil
}

// Close stops timers and discards in-flight results.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.cancelReminderLocked()
	s.closed = true
}

// LastActive is the time of the last user input.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	ID    string           `json:"id"`
	Phase Phase            `json:"phase"`
	Step  *StepView        `json:"step,omitempty"`
	Form  listing.LeadForm `json:"form"`
	OTP   otp.Status       `json:"-"`
	Busy  bool             `json:"busy"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{ID: s.id, Phase: s.phase, Form: s.form, OTP: s.otp.Status(), Busy: s.busy}
	if snap.Form.OTPCode != "" {
		snap.Form.OTPCode = "****"
	}
	if s.phase == PhaseCollecting {
		view := s.viewLocked()
		snap.Step = &view
	}
	return snap
}

func (s *Session) beginLocked() uint64 {
	s.busy = true
	s.shell.ShowTyping()
	return s.generation
}

// endLocked reports whether gen is still current and, if so, clears busy.
func (s *Session) endLocked(gen uint64) bool {
	if s.generation != gen {
		return false
	}
	s.busy = false
	s.shell.HideTyping()
	return true
}

func (s *Session) nextLocked() {
	s.index++
	s.renderLocked()
}

func (s *Session) viewLocked() StepView {
	view := StepView{Index: s.index, Total: len(steps), Step: Steps()[s.index]}
	if s.index == otpStep {
		st := s.otp.Status()
		view.ResendAvailableAt = st.ResendAvailableAt
		view.ExpiresAt = st.ExpiresAt
	}
	return view
}

func (s *Session) renderLocked() {
	if s.closed {
		return
	}
	view := s.viewLocked()
	s.shell.RenderStep(view)
	s.metrics.ObserveStep(string(view.Step.Field))
	s.armReminderLocked(view.Step.Reminder)
}

func (s *Session) armReminderLocked(text string) {
	s.cancelReminderLocked()
	s.stepSeq++
	token := s.stepSeq
	s.stopReminder = s.schedule(s.settings.ReminderDelay, func() { s.fireReminder(token, text) })
}

func (s *Session) fireReminder(token uint64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.stepSeq || s.stopReminder == nil || s.phase != PhaseCollecting || s.closed {
		return
	}
	s.stopReminder = nil
	s.shell.ShowReminder(text)
}

func (s *Session) cancelReminderLocked() {
	if s.stopReminder != nil {
		s.stopReminder()
		s.stopReminder = nil
	}
}

func (s *Session) touchLocked() {
	s.lastActive = s.now()
}
