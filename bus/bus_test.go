package bus

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/progrium/tabtalk-go/broadcast"
	"github.com/progrium/tabtalk-go/codec"
	"github.com/progrium/tabtalk-go/packet"
)

const (
	testAckWait = 50 * time.Millisecond
	quiet       = 30 * time.Millisecond
)

func fatal(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func newTestBus(t *testing.T, hub broadcast.Hub, opts ...func(*Options)) *Bus {
	t.Helper()
	o := Options{
		Hub:          hub,
		AckWait:      testAckWait,
		AckWaitExtra: 3 * testAckWait,
		FrameDelay:   time.Millisecond,
	}
	for _, fn := range opts {
		fn(&o)
	}
	b, err := New(o)
	fatal(err, t)
	t.Cleanup(func() { b.Close() })
	return b
}

func hidden(f *Flag) func(*Options) {
	return func(o *Options) { o.Visibility = f }
}

func nextPacket(t *testing.T, sub *Subscription, d time.Duration) (packet.Packet, bool) {
	t.Helper()
	select {
	case p, ok := <-sub.Packets():
		return p, ok
	case <-time.After(d):
		return packet.Packet{}, false
	}
}

func expectNone(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case p, ok := <-sub.Packets():
		if ok {
			t.Fatalf("unexpected packet %s", p)
		}
	case <-time.After(quiet):
	}
}

// tap opens a raw port on the channel, outside of any bus.
func tap(t *testing.T, hub broadcast.Hub, name string) broadcast.Port {
	t.Helper()
	port, err := hub.Open(DefaultPrefix + name)
	fatal(err, t)
	t.Cleanup(func() { port.Close() })
	return port
}

// drain collects every raw packet seen on port until it stays quiet.
func drain(t *testing.T, port broadcast.Port) []packet.Packet {
	t.Helper()
	incoming := make(chan []byte)
	go func() {
		for {
			b, err := port.Recv()
			if err != nil {
				close(incoming)
				return
			}
			incoming <- b
		}
	}()
	var got []packet.Packet
	for {
		select {
		case b, ok := <-incoming:
			if !ok {
				return got
			}
			var p packet.Packet
			fatal(codec.Unmarshal(codec.JSONCodec{}, b, &p), t)
			got = append(got, p)
		case <-time.After(4 * testAckWait):
			port.Close()
			return got
		}
	}
}

func TestNewRequiresHub(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without hub")
	}
}

func TestSendMessageReachesEveryListener(t *testing.T) {
	hub := broadcast.NewLocal()
	sender := newTestBus(t, hub)
	listeners := []*Bus{newTestBus(t, hub), newTestBus(t, hub)}

	var subs []*Subscription
	for _, l := range listeners {
		sub, err := l.GetChannelMessages("cards")
		fatal(err, t)
		subs = append(subs, sub)
	}
	raw := tap(t, hub, "cards")

	fatal(sender.SendMessage("cards", packet.Packet{
		Action: packet.Add,
		Data:   map[string]interface{}{"front": "hola", "back": "hello"},
	}), t)

	for i, sub := range subs {
		p, ok := nextPacket(t, sub, time.Second)
		if !ok {
			t.Fatalf("listener %d: no packet", i)
		}
		if p.Action != packet.Add {
			t.Fatalf("listener %d: unexpected action %q", i, p.Action)
		}
		if p.NeedAck {
			t.Fatalf("listener %d: fire-and-forget packet asks for ack", i)
		}
		var card struct {
			Front string `json:"front"`
		}
		fatal(p.Decode(&card), t)
		if card.Front != "hola" {
			t.Fatalf("listener %d: unexpected payload %#v", i, p.Data)
		}
	}

	seen := drain(t, raw)
	if len(seen) != 1 {
		t.Fatalf("expected exactly one message on the wire, got %d", len(seen))
	}
	if seen[0].MessageID < 0 || seen[0].MessageID >= maxRandID {
		t.Fatalf("message id out of range: %d", seen[0].MessageID)
	}
}

func TestSendMessageWithAck(t *testing.T) {
	hub := broadcast.NewLocal()
	sender := newTestBus(t, hub)
	peer := newTestBus(t, hub)

	sub, err := peer.GetChannelMessages("cards")
	fatal(err, t)
	raw := tap(t, hub, "cards")

	if !sender.SendMessageWithAck(context.Background(), "cards", packet.Packet{Action: packet.NeedData}, AckOptions{}) {
		t.Fatal("expected ack")
	}

	p, ok := nextPacket(t, sub, time.Second)
	if !ok {
		t.Fatal("peer got no packet")
	}
	if !p.NeedAck {
		t.Fatal("packet not marked NeedAck")
	}
	if p.SenderID != sender.Identity().Master() {
		t.Fatalf("unexpected sender id %q", p.SenderID)
	}
	expectNone(t, sub)

	seen := drain(t, raw)
	if len(seen) != 2 {
		t.Fatalf("expected original and one ack, got %d", len(seen))
	}
	ack := seen[1]
	if !ack.Acks(seen[0]) {
		t.Fatalf("second message is not the ack: %+v", ack)
	}
	if ack.SenderID != peer.Identity().Slave() {
		t.Fatalf("ack sent as %q", ack.SenderID)
	}
	if ack.NeedAck {
		t.Fatal("ack asks for ack")
	}
}

func TestSendMessageWithAckAsSlave(t *testing.T) {
	hub := broadcast.NewLocal()
	sender := newTestBus(t, hub)
	peer := newTestBus(t, hub)

	sub, err := peer.GetChannelMessages("cards")
	fatal(err, t)

	if !sender.SendMessageWithAck(context.Background(), "cards", packet.Packet{Action: packet.SendNext}, AckOptions{Role: Slave}) {
		t.Fatal("expected ack")
	}
	p, ok := nextPacket(t, sub, time.Second)
	if !ok {
		t.Fatal("peer got no packet")
	}
	if !strings.HasPrefix(p.SenderID, "slave-") {
		t.Fatalf("unexpected sender id %q", p.SenderID)
	}
}

func TestAckWithoutPeer(t *testing.T) {
	hub := broadcast.NewLocal()
	sender := newTestBus(t, hub)

	start := time.Now()
	if sender.SendMessageWithAck(context.Background(), "cards", packet.Packet{Action: packet.Open}, AckOptions{}) {
		t.Fatal("unexpected ack")
	}
	elapsed := time.Since(start)
	if elapsed < testAckWait {
		t.Fatalf("resolved too early: %s", elapsed)
	}
	if elapsed > testAckWait+time.Second {
		t.Fatalf("resolved too late: %s", elapsed)
	}
	if ch, ok := sender.reg.get("cards"); ok && ch.stream.size() != 0 {
		t.Fatal("ack observer still attached")
	}
}

func TestAckExtraWait(t *testing.T) {
	hub := broadcast.NewLocal()
	sender := newTestBus(t, hub)

	start := time.Now()
	if sender.SendMessageWithAck(context.Background(), "cards", packet.Packet{Action: packet.Open}, AckOptions{ExtraWait: true}) {
		t.Fatal("unexpected ack")
	}
	if elapsed := time.Since(start); elapsed < 3*testAckWait {
		t.Fatalf("did not use the extra wait: %s", elapsed)
	}
}

func TestAckContextCancelled(t *testing.T) {
	hub := broadcast.NewLocal()
	sender := newTestBus(t, hub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if sender.SendMessageWithAck(ctx, "cards", packet.Packet{Action: packet.Open}, AckOptions{ExtraWait: true}) {
		t.Fatal("unexpected ack")
	}
	if elapsed := time.Since(start); elapsed >= 3*testAckWait {
		t.Fatalf("cancellation ignored: %s", elapsed)
	}
}

func TestHiddenPeerNeverAcks(t *testing.T) {
	hub := broadcast.NewLocal()
	sender := newTestBus(t, hub)
	flag := NewFlag(false)
	peer := newTestBus(t, hub, hidden(flag))

	sub, err := peer.GetChannelMessages("cards")
	fatal(err, t)

	if sender.SendMessageWithAck(context.Background(), "cards", packet.Packet{Action: packet.NeedData}, AckOptions{}) {
		t.Fatal("hidden peer acknowledged")
	}
	expectNone(t, sub)

	// dropped packets are not replayed once visible again
	flag.Show()
	expectNone(t, sub)
	if !sender.SendMessageWithAck(context.Background(), "cards", packet.Packet{Action: packet.NeedData}, AckOptions{}) {
		t.Fatal("expected ack once visible")
	}
	if _, ok := nextPacket(t, sub, time.Second); !ok {
		t.Fatal("visible peer got no packet")
	}
}

func TestAckRepliesNotDelivered(t *testing.T) {
	hub := broadcast.NewLocal()
	sender := newTestBus(t, hub)
	peer := newTestBus(t, hub)

	own, err := sender.GetChannelMessages("cards")
	fatal(err, t)
	_, err = peer.GetChannelMessages("cards")
	fatal(err, t)

	if !sender.SendMessageWithAck(context.Background(), "cards", packet.Packet{Action: packet.NeedData}, AckOptions{}) {
		t.Fatal("expected ack")
	}
	// the sender sees neither its own post nor the reply
	expectNone(t, own)
}

func TestStrayAckIgnored(t *testing.T) {
	hub := broadcast.NewLocal()
	peer := newTestBus(t, hub)
	sub, err := peer.GetChannelMessages("cards")
	fatal(err, t)

	raw := tap(t, hub, "cards")
	b, err := codec.Marshal(codec.JSONCodec{}, packet.Packet{
		Action:                       packet.NeedData,
		SenderID:                     "slave-1",
		TargetID:                     "master-2",
		MessageID:                    42,
		AcknowledgingPreviousMessage: true,
	})
	fatal(err, t)
	fatal(raw.Post(b), t)

	expectNone(t, sub)
	if sub.Err() != nil {
		t.Fatal(sub.Err())
	}
}

func TestActionFilter(t *testing.T) {
	hub := broadcast.NewLocal()
	sender := newTestBus(t, hub)
	peer := newTestBus(t, hub)

	adds, err := peer.GetChannelMessages("cards", packet.Add)
	fatal(err, t)
	all, err := peer.GetChannelMessages("cards")
	fatal(err, t)

	fatal(sender.SendMessage("cards", packet.Packet{Action: packet.Reset}), t)
	fatal(sender.SendMessage("cards", packet.Packet{Action: packet.Add, Data: "one"}), t)
	fatal(sender.SendMessage("cards", packet.Packet{Action: packet.Add, Data: "two"}), t)

	for _, want := range []interface{}{"one", "two"} {
		p, ok := nextPacket(t, adds, time.Second)
		if !ok {
			t.Fatal("filtered subscription got no packet")
		}
		if p.Action != packet.Add || p.Data != want {
			t.Fatalf("unexpected packet %s %v", p, p.Data)
		}
	}
	expectNone(t, adds)

	for _, want := range []packet.Action{packet.Reset, packet.Add, packet.Add} {
		p, ok := nextPacket(t, all, time.Second)
		if !ok || p.Action != want {
			t.Fatalf("expected %q, got %s", want, p)
		}
	}
}

func TestCloseReleasesChannel(t *testing.T) {
	hub := broadcast.NewLocal()
	b := newTestBus(t, hub)

	first, err := b.GetChannelMessages("cards")
	fatal(err, t)
	second, err := b.GetChannelMessages("cards")
	fatal(err, t)
	if n := hub.Members(DefaultPrefix + "cards"); n != 1 {
		t.Fatalf("expected one shared port, got %d", n)
	}
	ch, _ := b.reg.get("cards")

	fatal(first.Close(), t)
	if n := hub.Members(DefaultPrefix + "cards"); n != 1 {
		t.Fatal("port closed while a consumer remains")
	}
	if _, ok := <-first.Packets(); ok {
		t.Fatal("closed subscription still delivering")
	}

	fatal(second.Close(), t)
	if n := hub.Members(DefaultPrefix + "cards"); n != 0 {
		t.Fatal("port left open after last consumer")
	}
	if len(b.Channels()) != 0 {
		t.Fatalf("channels still registered: %v", b.Channels())
	}
	select {
	case <-ch.done:
	case <-time.After(time.Second):
		t.Fatal("receive goroutine did not exit")
	}

	third, err := b.GetChannelMessages("cards")
	fatal(err, t)
	defer third.Close()
	if again, _ := b.reg.get("cards"); again == ch {
		t.Fatal("closed record reused")
	}
}

func TestSendOnlyChannelPersists(t *testing.T) {
	hub := broadcast.NewLocal()
	sender := newTestBus(t, hub)
	peer := newTestBus(t, hub)

	// opened by a plain send, with no subscriber, the record still acks
	fatal(peer.SendMessage("cards", packet.Packet{Action: packet.Open}), t)
	if got := peer.Channels(); len(got) != 1 || got[0] != "cards" {
		t.Fatalf("unexpected channels %v", got)
	}
	if !sender.SendMessageWithAck(context.Background(), "cards", packet.Packet{Action: packet.NeedData}, AckOptions{}) {
		t.Fatal("expected ack from a record without subscribers")
	}
}

func TestMalformedEndsSubscription(t *testing.T) {
	hub := broadcast.NewLocal()
	b := newTestBus(t, hub)
	sub, err := b.GetChannelMessages("cards")
	fatal(err, t)

	raw := tap(t, hub, "cards")
	fatal(raw.Post([]byte("not a packet")), t)

	select {
	case _, ok := <-sub.Packets():
		if ok {
			t.Fatal("malformed message delivered")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription did not end")
	}
	if !errors.Is(sub.Err(), ErrMalformed) {
		t.Fatalf("unexpected error %v", sub.Err())
	}
	if len(b.Channels()) != 0 {
		t.Fatal("failed channel still registered")
	}
	fatal(sub.Close(), t)

	// the next subscription gets a working record
	fresh, err := b.GetChannelMessages("cards")
	fatal(err, t)
	good, err := codec.Marshal(codec.JSONCodec{}, packet.Packet{Action: packet.Reset})
	fatal(err, t)
	fatal(raw.Post(good), t)
	if p, ok := nextPacket(t, fresh, time.Second); !ok || p.Action != packet.Reset {
		t.Fatal("fresh subscription got nothing")
	}
}

func TestBusClose(t *testing.T) {
	hub := broadcast.NewLocal()
	b := newTestBus(t, hub)
	sub, err := b.GetChannelMessages("cards")
	fatal(err, t)

	fatal(b.Close(), t)
	if _, ok := <-sub.Packets(); ok {
		t.Fatal("subscription open after bus close")
	}
	if sub.Err() != nil {
		t.Fatalf("unexpected error %v", sub.Err())
	}
	if _, err := b.GetChannelMessages("cards"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := b.SendMessage("cards", packet.Packet{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if b.SendMessageWithAck(context.Background(), "cards", packet.Packet{}, AckOptions{}) {
		t.Fatal("closed bus acked")
	}
	fatal(b.Close(), t)
}

func TestCBORBus(t *testing.T) {
	hub := broadcast.NewLocal()
	cbor := func(o *Options) { o.Codec = codec.CBORCodec{} }
	sender := newTestBus(t, hub, cbor)
	peer := newTestBus(t, hub, cbor)

	sub, err := peer.GetChannelMessages("cards")
	fatal(err, t)
	if !sender.SendMessageWithAck(context.Background(), "cards", packet.Packet{
		Action: packet.OverwriteData,
		Data:   []interface{}{map[string]interface{}{"front": "uno"}},
	}, AckOptions{}) {
		t.Fatal("expected ack")
	}
	p, ok := nextPacket(t, sub, time.Second)
	if !ok {
		t.Fatal("no packet")
	}
	var cards []struct {
		Front string `json:"front"`
	}
	fatal(p.Decode(&cards), t)
	if len(cards) != 1 || cards[0].Front != "uno" {
		t.Fatalf("unexpected payload %#v", p.Data)
	}
}

func TestCloseChannel(t *testing.T) {
	hub := broadcast.NewLocal()
	b := newTestBus(t, hub)
	sub, err := b.GetChannelMessages("cards")
	fatal(err, t)
	other, err := b.GetChannelMessages("other")
	fatal(err, t)

	b.CloseChannel("cards")
	if _, ok := <-sub.Packets(); ok {
		t.Fatal("subscription open after CloseChannel")
	}
	if sub.Err() != nil {
		t.Fatalf("unexpected error %v", sub.Err())
	}
	if got := b.Channels(); len(got) != 1 || got[0] != "other" {
		t.Fatalf("unexpected channels %v", got)
	}
	fatal(sub.Close(), t)
	fatal(other.Close(), t)
}

func TestAckSurvivesChannelTeardown(t *testing.T) {
	hub := broadcast.NewLocal()
	slowFrame := func(o *Options) {
		o.FrameDelay = 20 * time.Millisecond
		o.AckWait = time.Second
	}
	sender := newTestBus(t, hub, slowFrame)
	peer := newTestBus(t, hub)

	remote, err := peer.GetChannelMessages("cards")
	fatal(err, t)
	own, err := sender.GetChannelMessages("cards")
	fatal(err, t)

	result := make(chan bool, 1)
	go func() {
		result <- sender.SendMessageWithAck(context.Background(), "cards", packet.Packet{Action: packet.NeedData}, AckOptions{})
	}()
	// the last local consumer leaves before the deferred post
	time.Sleep(5 * time.Millisecond)
	fatal(own.Close(), t)

	if _, ok := nextPacket(t, remote, time.Second); !ok {
		t.Fatal("peer never got the packet")
	}
	select {
	case ok := <-result:
		if !ok {
			t.Fatal("expected ack after the channel was reopened")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ack send never resolved")
	}
}

func TestAckCancelledBeforePost(t *testing.T) {
	hub := broadcast.NewLocal()
	slowFrame := func(o *Options) { o.FrameDelay = 50 * time.Millisecond }
	sender := newTestBus(t, hub, slowFrame)
	peer := newTestBus(t, hub)

	sub, err := peer.GetChannelMessages("cards")
	fatal(err, t)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if sender.SendMessageWithAck(cancelled, "cards", packet.Packet{Action: packet.Reset}, AckOptions{}) {
		t.Fatal("cancelled send acked")
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(5*time.Millisecond, cancel)
	if sender.SendMessageWithAck(ctx, "cards", packet.Packet{Action: packet.Reset}, AckOptions{}) {
		t.Fatal("cancelled send acked")
	}

	// neither packet may go out after false was reported
	select {
	case p, ok := <-sub.Packets():
		if ok {
			t.Fatalf("peer got %s after the sender gave up", p)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSingleActionFilter(t *testing.T) {
	b := newTestBus(t, broadcast.NewLocal())
	if _, err := b.GetChannelMessages("cards", packet.Add, packet.Reset); err == nil {
		t.Fatal("expected error for two action filters")
	}
	if len(b.Channels()) != 0 {
		t.Fatalf("rejected subscription opened a channel: %v", b.Channels())
	}
}
