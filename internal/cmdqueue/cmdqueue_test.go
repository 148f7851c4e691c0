package cmdqueue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ovpngui/ovpngui/internal/model"
)

// wire records what the queue writes to the network.
type wire struct {
	sent []string
	err  error
}

func (w *wire) send(text string) error {
	if w.err != nil {
		return w.err
	}
	w.sent = append(w.sent, text)
	return nil
}

// recorder records the replies delivered to a handler.
type recorder struct {
	replies []Reply
}

func (r *recorder) handle(reply Reply) {
	r.replies = append(r.replies, reply)
}

func newTestQueue() (*Queue, *wire) {
	w := &wire{}
	return New(w.send, model.NewTestLogger()), w
}

func TestQueue_Enqueue(t *testing.T) {
	t.Run("the first command is sent immediately and newline terminated", func(t *testing.T) {
		q, w := newTestQueue()
		if err := q.Enqueue("state on", nil, Regular); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"state on\n"}, w.sent); diff != "" {
			t.Error(diff)
		}
		if head, ok := q.Head(); !ok || head != "state on" {
			t.Errorf("Head() = %q %v", head, ok)
		}
	})

	t.Run("later commands wait for the head", func(t *testing.T) {
		q, w := newTestQueue()
		q.Enqueue("state on", nil, Regular)
		q.Enqueue("bytecount 5", nil, Regular)
		if len(w.sent) != 1 {
			t.Fatalf("expected one command on the wire, got %v", w.sent)
		}
		if q.Len() != 2 {
			t.Errorf("Len() = %d", q.Len())
		}
	})

	t.Run("empty commands are rejected", func(t *testing.T) {
		q, w := newTestQueue()
		if err := q.Enqueue("\n", nil, Regular); !errors.Is(err, ErrEmptyCommand) {
			t.Errorf("expected ErrEmptyCommand, got %v", err)
		}
		if len(w.sent) != 0 || q.Len() != 0 {
			t.Errorf("nothing should be queued")
		}
	})

	t.Run("a send failure is reported", func(t *testing.T) {
		q, w := newTestQueue()
		w.err = errors.New("broken pipe")
		if err := q.Enqueue("state on", nil, Regular); !errors.Is(err, w.err) {
			t.Errorf("expected send error, got %v", err)
		}
	})
}

// the Nth command is only sent after the (N-1)th got its terminal reply.
func TestQueue_Ordering(t *testing.T) {
	q, w := newTestQueue()
	const count = 10
	for i := 0; i < count; i++ {
		q.Enqueue(fmt.Sprintf("cmd %d", i), nil, Regular)
	}
	terminals := []string{"SUCCESS: ok", "ERROR: nope", "END"}
	for i := 0; i < count; i++ {
		if len(w.sent) != i+1 {
			t.Fatalf("after %d replies expected %d commands sent, got %d", i, i+1, len(w.sent))
		}
		if w.sent[i] != fmt.Sprintf("cmd %d\n", i) {
			t.Fatalf("command %d sent out of order: %q", i, w.sent[i])
		}
		// a non terminal line never advances the queue
		q.OnReply("some multi-line output")
		if len(w.sent) != i+1 {
			t.Fatalf("a non terminal line advanced the queue")
		}
		q.OnReply(terminals[i%len(terminals)])
	}
	if q.Len() != 0 {
		t.Errorf("expected an empty queue, got %d", q.Len())
	}
	if q.OnReply("SUCCESS: stray") {
		t.Errorf("a reply with no command should not be consumed")
	}
}

func TestQueue_Replies(t *testing.T) {
	t.Run("success and error payloads reach the handler before dequeue", func(t *testing.T) {
		q, _ := newTestQueue()
		rec := &recorder{}
		q.Enqueue("pid", rec.handle, Regular)
		q.Enqueue("version", rec.handle, Regular)
		q.OnReply("SUCCESS: pid=4242")
		q.OnReply("ERROR: unknown command")
		want := []Reply{
			{Kind: ReplySuccess, Text: "pid=4242"},
			{Kind: ReplyError, Text: "unknown command"},
		}
		if diff := cmp.Diff(want, rec.replies); diff != "" {
			t.Error(diff)
		}
	})

	t.Run("END dequeues without calling the handler", func(t *testing.T) {
		q, _ := newTestQueue()
		rec := &recorder{}
		q.Enqueue("state", rec.handle, Regular)
		q.OnReply("1700000000,CONNECTED,SUCCESS,10.8.0.5,1.2.3.4,1194,,,")
		q.OnReply("END")
		want := []Reply{{Kind: ReplyLine, Text: "1700000000,CONNECTED,SUCCESS,10.8.0.5,1.2.3.4,1194,,,"}}
		if diff := cmp.Diff(want, rec.replies); diff != "" {
			t.Error(diff)
		}
		if q.Len() != 0 {
			t.Errorf("expected empty queue")
		}
	})

	t.Run("pseudo replies are terminal", func(t *testing.T) {
		q, w := newTestQueue()
		rec := &recorder{}
		q.Enqueue("pkcs11-id-count", rec.handle, Regular)
		q.Enqueue("hold release", nil, Regular)
		if !q.OnPseudoReply("2") {
			t.Fatal("expected the pseudo reply to be consumed")
		}
		if diff := cmp.Diff([]Reply{{Kind: ReplySuccess, Text: "2"}}, rec.replies); diff != "" {
			t.Error(diff)
		}
		if diff := cmp.Diff([]string{"pkcs11-id-count\n", "hold release\n"}, w.sent); diff != "" {
			t.Error(diff)
		}
	})

	t.Run("a handler may enqueue follow up commands", func(t *testing.T) {
		q, w := newTestQueue()
		q.Enqueue("pkcs11-id-count", func(r Reply) {
			q.Enqueue("pkcs11-id-get 0", nil, Regular)
		}, Regular)
		q.OnPseudoReply("1")
		if diff := cmp.Diff([]string{"pkcs11-id-count\n", "pkcs11-id-get 0\n"}, w.sent); diff != "" {
			t.Error(diff)
		}
		if q.Len() != 1 {
			t.Errorf("Len() = %d", q.Len())
		}
	})

	t.Run("a handler may reset the queue", func(t *testing.T) {
		q, _ := newTestQueue()
		q.Enqueue("hold release", func(r Reply) { q.Reset() }, Regular)
		q.Enqueue("bytecount 5", nil, Regular)
		q.OnReply("ERROR: not on hold")
		if q.Len() != 0 {
			t.Errorf("Len() = %d", q.Len())
		}
	})
}

func TestQueue_Combined(t *testing.T) {
	t.Run("a subscription keeps receiving lines until its second terminal reply", func(t *testing.T) {
		q, w := newTestQueue()
		logs := &recorder{}
		q.Enqueue("state on", nil, Regular)
		q.Enqueue("log all on", logs.handle, Combined)
		q.Enqueue("bytecount 5", nil, Regular)

		// the first SUCCESS belongs to the head in enqueue order
		q.OnReply("SUCCESS: real-time state notification set to ON")
		if head, _ := q.Head(); head != "log all on" {
			t.Fatalf("unexpected head %q", head)
		}
		for i := 0; i < 3; i++ {
			q.OnReply(fmt.Sprintf("1700000000,I,line %d", i))
		}
		if head, _ := q.Head(); head != "log all on" {
			t.Fatalf("streamed lines dequeued the subscription")
		}

		// the first terminal reply only demotes the subscription
		q.OnReply("SUCCESS: real-time log notification set to ON")
		if head, _ := q.Head(); head != "log all on" {
			t.Fatalf("the first terminal reply removed a combined command")
		}
		q.OnReply("1700000001,I,history line")

		// the second one removes it and sends the next command
		q.OnReply("END")
		if head, _ := q.Head(); head != "bytecount 5" {
			t.Fatalf("unexpected head %q", head)
		}

		wantLogs := []Reply{
			{Kind: ReplyLine, Text: "1700000000,I,line 0"},
			{Kind: ReplyLine, Text: "1700000000,I,line 1"},
			{Kind: ReplyLine, Text: "1700000000,I,line 2"},
			{Kind: ReplySuccess, Text: "real-time log notification set to ON"},
			{Kind: ReplyLine, Text: "1700000001,I,history line"},
		}
		if diff := cmp.Diff(wantLogs, logs.replies); diff != "" {
			t.Errorf("log handler replies (-want +got):\n%s", diff)
		}
		wantSent := []string{"state on\n", "log all on\n", "bytecount 5\n"}
		if diff := cmp.Diff(wantSent, w.sent); diff != "" {
			t.Errorf("sent commands (-want +got):\n%s", diff)
		}
	})

	t.Run("a second subscription waits for the first one", func(t *testing.T) {
		q, w := newTestQueue()
		echos := &recorder{}
		q.Enqueue("log all on", nil, Combined)
		q.Enqueue("echo all on", echos.handle, Combined)
		q.OnReply("SUCCESS: real-time log notification set to ON")
		q.OnReply("1700000000,I,history")
		if len(w.sent) != 1 || len(echos.replies) != 0 {
			t.Fatalf("echo all on must not be in flight yet")
		}
		q.OnReply("END")
		q.OnReply("SUCCESS: real-time echo notification set to ON")
		q.OnReply("1700000000,msg hello")
		q.OnReply("END")
		if diff := cmp.Diff([]string{"log all on\n", "echo all on\n"}, w.sent); diff != "" {
			t.Error(diff)
		}
		if len(echos.replies) != 2 || q.Len() != 0 {
			t.Errorf("unexpected replies %v or queue length %d", echos.replies, q.Len())
		}
	})
}

func TestKind_String(t *testing.T) {
	if Regular.String() != "regular" || Combined.String() != "combined" || Kind(9).String() != "invalid" {
		t.Error("unexpected Kind strings")
	}
}
