// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sona-chat/sona/dedup"
	"github.com/sona-chat/sona/dispatch"
	"github.com/sona-chat/sona/event"
	"github.com/sona-chat/sona/lib/clock"
	"github.com/sona-chat/sona/timeline"
)

const (
	testRoom  = "room-1"
	otherRoom = "room-2"
)

var localUser = event.Sender{ID: "user-local", DisplayName: "Local"}

type sentMessage struct {
	roomID        string
	body          string
	correlationID string
}

// fakeTransport records every outbound call.
type fakeTransport struct {
	mu           sync.Mutex
	subscribes   []string
	resubscribes []string
	sent         []sentMessage
	typing       []bool
	reactions    []string
	markedRead   [][]string
}

func (f *fakeTransport) Subscribe(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, roomID)
	return nil
}

func (f *fakeTransport) SendMessage(_ context.Context, roomID, body, correlationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{roomID, body, correlationID})
	return nil
}

func (f *fakeTransport) SendReaction(_ context.Context, roomID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, messageID+":"+emoji)
	return nil
}

func (f *fakeTransport) MarkRead(_ context.Context, _ string, messageIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead = append(f.markedRead, messageIDs)
	return nil
}

func (f *fakeTransport) SendTyping(_ context.Context, _ string, isTyping bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, isTyping)
	return nil
}

func (f *fakeTransport) ForceResubscribe(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resubscribes = append(f.resubscribes, roomID)
	return nil
}

func (f *fakeTransport) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeTransport) typingSignals() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.typing...)
}

// fakeHistory serves a fixed batch or a fixed error.
type fakeHistory struct {
	batch []event.NewMessagePayload
	err   error
}

func (f *fakeHistory) FetchHistory(context.Context, string) ([]event.NewMessagePayload, error) {
	return f.batch, f.err
}

// testEnv bundles the fixtures most room tests need.
type testEnv struct {
	room       *Room
	dispatcher *dispatch.Dispatcher
	transport  *fakeTransport
	clock      *clock.FakeClock
	gate       *gateFlag
}

type gateFlag struct{ v bool }

func (g *gateFlag) authenticated() bool { return g.v }

func openTestRoom(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	transport := &fakeTransport{}
	dispatcher := dispatch.New(dispatch.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	gate := &gateFlag{v: true}

	config := Config{
		RoomID:        testRoom,
		LocalUser:     localUser,
		Transport:     transport,
		Dispatcher:    dispatcher,
		Windows:       dedup.NewWindows(fake),
		Clock:         fake,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Authenticated: gate.authenticated,
	}
	if mutate != nil {
		mutate(&config)
	}

	room, err := Open(context.Background(), config)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(room.Close)

	return &testEnv{room: room, dispatcher: dispatcher, transport: transport, clock: fake, gate: gate}
}

func inbound(id, body, senderID string) event.NewMessagePayload {
	return event.NewMessagePayload{
		RoomID:    testRoom,
		MessageID: id,
		Content:   body,
		Kind:      event.KindUser,
		Sender:    event.Sender{ID: senderID, DisplayName: senderID},
		CreatedAt: time.Unix(1_700_000_100, 0),
	}
}

func TestOpenSubscribesAndLoadsHistory(t *testing.T) {
	env := openTestRoom(t, func(config *Config) {
		config.History = &fakeHistory{batch: []event.NewMessagePayload{
			inbound("h1", "hello", "user-peer"),
			inbound("h2", "world", "user-peer"),
		}}
	})

	if got := env.transport.subscribes; len(got) != 1 || got[0] != testRoom {
		t.Fatalf("subscribes = %v, want [%s]", got, testRoom)
	}
	messages := env.room.Messages()
	if len(messages) != 2 || messages[0].ID != "h1" || messages[1].ID != "h2" {
		t.Fatalf("loaded %v, want h1,h2 in order", messages)
	}
	if env.room.LoadError() != nil {
		t.Fatalf("LoadError = %v, want nil", env.room.LoadError())
	}
}

func TestHistoryFailureSurfacesWithoutFailingOpen(t *testing.T) {
	fetchErr := errors.New("backend unavailable")
	var historyErrs, accessErrs []error
	env := openTestRoom(t, func(config *Config) {
		config.History = &fakeHistory{err: fetchErr}
		config.Callbacks = Callbacks{
			OnHistoryError: func(err error) { historyErrs = append(historyErrs, err) },
			OnAccessDenied: func(err error) { accessErrs = append(accessErrs, err) },
		}
	})

	if len(historyErrs) != 1 || !errors.Is(historyErrs[0], fetchErr) {
		t.Fatalf("OnHistoryError calls = %v, want the fetch error once", historyErrs)
	}
	if len(accessErrs) != 0 {
		t.Fatalf("OnAccessDenied called for a generic failure: %v", accessErrs)
	}
	if env.room.LoadError() == nil {
		t.Fatal("LoadError not recorded")
	}

	// Live events still work after a failed load.
	env.dispatcher.Publish(event.NewMessage, inbound("s1", "live", "user-peer"))
	if len(env.room.Messages()) != 1 {
		t.Fatal("live event not applied after history failure")
	}
}

func TestAccessDeniedRoutedToDedicatedCallback(t *testing.T) {
	var historyErrs, accessErrs []error
	openTestRoom(t, func(config *Config) {
		config.History = &fakeHistory{err: fmt.Errorf("banned from room: %w", ErrAccessDenied)}
		config.Callbacks = Callbacks{
			OnHistoryError: func(err error) { historyErrs = append(historyErrs, err) },
			OnAccessDenied: func(err error) { accessErrs = append(accessErrs, err) },
		}
	})

	if len(accessErrs) != 1 {
		t.Fatalf("OnAccessDenied calls = %d, want 1", len(accessErrs))
	}
	if len(historyErrs) != 0 {
		t.Fatalf("generic error callback fired for access denial: %v", historyErrs)
	}
}

func TestSendAppendsOptimisticRecord(t *testing.T) {
	env := openTestRoom(t, nil)

	if err := env.room.Send(context.Background(), "  hello there  "); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	messages := env.room.Messages()
	if len(messages) != 1 {
		t.Fatalf("timeline has %d records, want 1", len(messages))
	}
	record := messages[0]
	if record.Status != timeline.StatusSending {
		t.Errorf("status = %q, want sending", record.Status)
	}
	if record.Body != "hello there" {
		t.Errorf("body = %q, want trimmed", record.Body)
	}
	if record.CorrelationID == "" {
		t.Error("no correlation id assigned")
	}

	sent := env.transport.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("transport got %d sends, want 1", len(sent))
	}
	if sent[0].body != "hello there" || sent[0].correlationID != record.CorrelationID {
		t.Errorf("transport send = %+v, mismatch with record", sent[0])
	}
}

func TestSendEmptyBodyIsNoOp(t *testing.T) {
	env := openTestRoom(t, nil)

	if err := env.room.Send(context.Background(), "   "); err != nil {
		t.Fatalf("Send of empty body returned error: %v", err)
	}
	if len(env.room.Messages()) != 0 {
		t.Fatal("empty send appended a record")
	}
	if len(env.transport.sentMessages()) != 0 {
		t.Fatal("empty send reached the transport")
	}
}

func TestOptimisticSendReconciles(t *testing.T) {
	env := openTestRoom(t, nil)

	env.dispatcher.Publish(event.NewMessage, inbound("s0", "earlier", "user-peer"))
	if err := env.room.Send(context.Background(), "B"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	correlationID := env.room.Messages()[1].CorrelationID

	confirmation := inbound("s1", "B", localUser.ID)
	confirmation.CorrelationID = correlationID
	env.dispatcher.Publish(event.NewMessage, confirmation)
	env.dispatcher.Publish(event.NewMessage, confirmation) // redelivery

	messages := env.room.Messages()
	if len(messages) != 2 {
		t.Fatalf("timeline has %d records, want 2", len(messages))
	}
	if messages[1].ID != "s1" || messages[1].Status != timeline.StatusSent {
		t.Fatalf("record = {id:%q status:%q}, want {s1 sent}", messages[1].ID, messages[1].Status)
	}
}

func TestAckUpdatesRecord(t *testing.T) {
	env := openTestRoom(t, nil)

	env.room.Send(context.Background(), "hello")
	correlationID := env.room.Messages()[0].CorrelationID

	env.dispatcher.Publish(event.Ack, event.AckPayload{
		CorrelationID: correlationID,
		MessageID:     "s1",
		Status:        "DELIVERED",
	})

	record := env.room.Messages()[0]
	if record.ID != "s1" || record.Status != timeline.StatusDelivered {
		t.Fatalf("record = {id:%q status:%q}, want {s1 delivered}", record.ID, record.Status)
	}
}

func TestReconnectResendsPendingSends(t *testing.T) {
	env := openTestRoom(t, nil)

	env.room.Send(context.Background(), "first")
	env.room.Send(context.Background(), "second")
	baseline := len(env.transport.sentMessages())

	// Intermediate states trigger nothing.
	env.dispatcher.Publish(event.ConnectionChange, event.ConnectionChangePayload{State: event.Reconnecting})
	env.dispatcher.Publish(event.ConnectionChange, event.ConnectionChangePayload{State: event.Disconnected})
	if got := len(env.transport.sentMessages()); got != baseline {
		t.Fatalf("reconnecting/disconnected caused %d sends", got-baseline)
	}

	env.dispatcher.Publish(event.ConnectionChange, event.ConnectionChangePayload{State: event.Connected})

	sent := env.transport.sentMessages()
	if len(sent) != baseline+2 {
		t.Fatalf("resent %d records, want 2", len(sent)-baseline)
	}
	if sent[baseline].body != "first" || sent[baseline+1].body != "second" {
		t.Fatalf("resends out of order: %+v", sent[baseline:])
	}
	if got := env.transport.resubscribes; len(got) != 1 || got[0] != testRoom {
		t.Fatalf("resubscribes = %v, want [%s]", got, testRoom)
	}

	// A confirmed record is not resent on the next reconnect.
	env.dispatcher.Publish(event.Ack, event.AckPayload{
		CorrelationID: sent[baseline].correlationID, MessageID: "s1", Status: "sent",
	})
	env.dispatcher.Publish(event.ConnectionChange, event.ConnectionChangePayload{State: event.Connected})
	final := env.transport.sentMessages()
	if len(final) != baseline+3 {
		t.Fatalf("second reconnect resent %d records, want 1", len(final)-baseline-2)
	}
	if final[baseline+2].body != "second" {
		t.Fatalf("wrong record resent: %+v", final[baseline+2])
	}
}

func TestRetryLifecycle(t *testing.T) {
	env := openTestRoom(t, nil)

	env.room.Send(context.Background(), "fragile")
	record := env.room.Messages()[0]

	// A failed ack is the entry path into the failed state.
	env.dispatcher.Publish(event.Ack, event.AckPayload{
		CorrelationID: record.CorrelationID, Status: "failed",
	})
	if got := env.room.Messages()[0].Status; got != timeline.StatusFailed {
		t.Fatalf("status after failed ack = %q, want failed", got)
	}

	localID := env.room.Messages()[0].ID
	if err := env.room.Retry(context.Background(), localID); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if got := env.room.Messages()[0].Status; got != timeline.StatusSending {
		t.Fatalf("status after retry = %q, want sending", got)
	}

	// No ack within the timeout demotes back to failed.
	env.clock.Advance(DefaultRetryTimeout)
	if got := env.room.Messages()[0].Status; got != timeline.StatusFailed {
		t.Fatalf("status after retry timeout = %q, want failed", got)
	}

	// Retry again; this time the ack wins the race.
	env.room.Retry(context.Background(), localID)
	env.dispatcher.Publish(event.Ack, event.AckPayload{
		CorrelationID: record.CorrelationID, MessageID: "s1", Status: "sent",
	})
	env.clock.Advance(DefaultRetryTimeout)
	if got := env.room.Messages()[0].Status; got != timeline.StatusSent {
		t.Fatalf("acked record demoted by stale retry timer: %q", got)
	}
}

func TestRetryRejectsNonFailedRecords(t *testing.T) {
	env := openTestRoom(t, nil)
	env.room.Send(context.Background(), "pending")
	localID := env.room.Messages()[0].ID

	if err := env.room.Retry(context.Background(), localID); err == nil {
		t.Fatal("Retry accepted a record still in sending state")
	}
}

func TestDisconnectDoesNotFailSends(t *testing.T) {
	env := openTestRoom(t, nil)
	env.room.Send(context.Background(), "hello")

	env.dispatcher.Publish(event.ConnectionChange, event.ConnectionChangePayload{State: event.Disconnected})
	env.clock.Advance(time.Minute)

	if got := env.room.Messages()[0].Status; got != timeline.StatusSending {
		t.Fatalf("status = %q after disconnect, want sending", got)
	}
}

func TestMembershipDedupAndRouting(t *testing.T) {
	var interrupts []event.MembershipPayload
	env := openTestRoom(t, func(config *Config) {
		config.Callbacks = Callbacks{
			OnMembership: func(payload event.MembershipPayload) { interrupts = append(interrupts, payload) },
		}
	})

	kicked := event.MembershipPayload{
		Action: event.MemberKicked, RoomID: testRoom, SubjectUserID: localUser.ID, ActorID: "mod",
	}
	env.dispatcher.Publish(event.Membership, kicked)
	env.dispatcher.Publish(event.Membership, kicked) // redelivery
	if len(interrupts) != 1 {
		t.Fatalf("interrupt callbacks = %d, want 1 (dedup)", len(interrupts))
	}

	// A different action is a distinct composite key.
	banned := kicked
	banned.Action = event.MemberBanned
	env.dispatcher.Publish(event.Membership, banned)
	if len(interrupts) != 2 {
		t.Fatalf("interrupt callbacks = %d, want 2", len(interrupts))
	}

	// After the window expires the same key interrupts again.
	env.clock.Advance(dedup.MembershipTTL + time.Second)
	env.dispatcher.Publish(event.Membership, kicked)
	if len(interrupts) != 3 {
		t.Fatalf("interrupt callbacks = %d, want 3 after TTL", len(interrupts))
	}

	// Cross-room membership never reaches this context.
	foreign := kicked
	foreign.RoomID = otherRoom
	env.dispatcher.Publish(event.Membership, foreign)
	if len(interrupts) != 3 {
		t.Fatal("foreign-room membership event interrupted this context")
	}
}

func TestTypingPresenceThroughDispatcher(t *testing.T) {
	env := openTestRoom(t, nil)

	env.dispatcher.Publish(event.TypingStart, event.TypingPayload{
		RoomID: testRoom, UserID: "user-peer", DisplayName: "Peer",
	})
	if got := env.room.Typists(); len(got) != 1 || got[0] != "Peer" {
		t.Fatalf("typists = %v, want [Peer]", got)
	}

	env.dispatcher.Publish(event.TypingStop, event.TypingPayload{
		RoomID: testRoom, UserID: "user-peer", DisplayName: "Peer",
	})
	if got := env.room.Typists(); len(got) != 0 {
		t.Fatalf("typists = %v, want empty", got)
	}
}

func TestComposerDrivesTransport(t *testing.T) {
	env := openTestRoom(t, nil)

	env.room.Composer().SetText("h")
	env.room.Composer().SetText("he")
	env.clock.Advance(3 * time.Second)

	signals := env.transport.typingSignals()
	if len(signals) != 2 || signals[0] != true || signals[1] != false {
		t.Fatalf("typing signals = %v, want [true false]", signals)
	}
}

func TestSendSubmitsComposer(t *testing.T) {
	env := openTestRoom(t, nil)

	env.room.Composer().SetText("hello")
	env.room.Send(context.Background(), "hello")

	signals := env.transport.typingSignals()
	if len(signals) != 2 || signals[1] != false {
		t.Fatalf("typing signals = %v, want stop on submit", signals)
	}
}

func TestUnauthenticatedGateIgnoresEvents(t *testing.T) {
	env := openTestRoom(t, nil)

	env.gate.v = false
	env.dispatcher.Publish(event.NewMessage, inbound("s1", "ghost", "user-peer"))
	if len(env.room.Messages()) != 0 {
		t.Fatal("event applied while unauthenticated")
	}
	if err := env.room.Send(context.Background(), "nope"); err == nil {
		t.Fatal("Send succeeded while unauthenticated")
	}

	env.gate.v = true
	env.dispatcher.Publish(event.NewMessage, inbound("s2", "real", "user-peer"))
	if len(env.room.Messages()) != 1 {
		t.Fatal("event not applied after re-authentication")
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	env := openTestRoom(t, nil)

	env.room.Close()
	env.dispatcher.Publish(event.NewMessage, inbound("s1", "late", "user-peer"))
	if len(env.room.Messages()) != 0 {
		t.Fatal("event applied after Close")
	}
	if env.clock.PendingCount() != 0 {
		t.Fatal("timers left armed after Close")
	}

	// Idempotent.
	env.room.Close()
}

func TestCrossRoomEventsDoNotTouchThisContext(t *testing.T) {
	var updates int
	env := openTestRoom(t, func(config *Config) {
		config.Callbacks = Callbacks{OnUpdate: func() { updates++ }}
	})

	foreign := inbound("s1", "elsewhere", "user-peer")
	foreign.RoomID = otherRoom
	env.dispatcher.Publish(event.NewMessage, foreign)
	env.dispatcher.Publish(event.Read, event.ReadPayload{
		RoomID: otherRoom, ReaderID: "user-peer", LastReadMessageID: "s1",
	})
	env.dispatcher.Publish(event.TypingStart, event.TypingPayload{RoomID: otherRoom, UserID: "user-peer"})

	if len(env.room.Messages()) != 0 || len(env.room.Typists()) != 0 || updates != 0 {
		t.Fatal("foreign-room events mutated this context")
	}
}

func TestReadAndReactionPassThroughs(t *testing.T) {
	env := openTestRoom(t, nil)

	if err := env.room.MarkRead(context.Background(), []string{"s1", "s2"}); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if err := env.room.SendReaction(context.Background(), "s1", "👍"); err != nil {
		t.Fatalf("SendReaction failed: %v", err)
	}

	env.transport.mu.Lock()
	defer env.transport.mu.Unlock()
	if len(env.transport.markedRead) != 1 || len(env.transport.markedRead[0]) != 2 {
		t.Fatalf("markedRead = %v, want one batch of two ids", env.transport.markedRead)
	}
	if len(env.transport.reactions) != 1 || env.transport.reactions[0] != "s1:👍" {
		t.Fatalf("reactions = %v, want [s1:👍]", env.transport.reactions)
	}
}
