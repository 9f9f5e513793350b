package ip4

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopFrameReceiver lets AcceptFrame's own deferred re-arm succeed without
// delivering another frame.
type noopFrameReceiver struct{}

func (noopFrameReceiver) Receive(ctx context.Context, cb FrameCallback) error { return nil }

func newIngressService() *Service {
	svc := NewService(17, fakeLogger{})
	svc.Classifier = &fakeClassifier{result: CastUnicast}
	svc.FrameReceiver = noopFrameReceiver{}
	return svc
}

func TestAcceptFrameDropsShortFrame(t *testing.T) {
	svc := newIngressService()
	svc.AcceptFrame(context.Background(), []byte{1, 2, 3}, nil, 0)
	assert.EqualValues(t, 1, svc.Metrics.FragmentsDropped)
}

func TestAcceptFrameDropsOnChecksumFailure(t *testing.T) {
	svc := newIngressService()
	raw := buildFrame(1, 17, false, false, 0, testSrc, testDst, []byte("payload"))
	raw[10] ^= 0xFF // corrupt the checksum
	raw[11] ^= 0xFF

	svc.AcceptFrame(context.Background(), raw, nil, 0)
	assert.EqualValues(t, 1, svc.Metrics.FragmentsDropped)
}

func TestAcceptFrameDropsDontFragmentSetOnFragment(t *testing.T) {
	svc := newIngressService()
	raw := buildFrame(1, 17, true, true, 0, testSrc, testDst, []byte("01234567"))

	svc.AcceptFrame(context.Background(), raw, nil, 0)
	assert.EqualValues(t, 1, svc.Metrics.FragmentsDropped)
}

func TestAcceptFrameDropsNonMultipleOf8NonFinalFragment(t *testing.T) {
	svc := newIngressService()
	raw := buildFrame(1, 17, false, true, 0, testSrc, testDst, []byte("0123456")) // 7 bytes

	svc.AcceptFrame(context.Background(), raw, nil, 0)
	assert.EqualValues(t, 1, svc.Metrics.FragmentsDropped)
}

func TestAcceptFrameDispatchesSingleDatagramDirectly(t *testing.T) {
	svc := newIngressService()
	iface := &Interface{Configured: true, Address: nil}
	svc.AddInterface(iface)
	child := NewChild("c1", ChildConfig{AcceptAnyProtocol: true, ReceiveTimeout: 5})
	child.State = ChildConfigured
	svc.AddChild(iface, child)

	var notified *RxToken
	child.Recv(&RxToken{Notify: func(tok *RxToken) { notified = tok }})

	raw := buildFrame(1, 17, false, false, 0, testSrc, testDst, []byte("hello"))
	svc.AcceptFrame(context.Background(), raw, nil, 0)

	require.NotNil(t, notified)
	assert.Equal(t, []byte("hello"), notified.Wrapper.Fragments[0])
	assert.EqualValues(t, 1, svc.Metrics.DatagramsDelivered)
}

func TestAcceptFrameReassemblesFragmentedDatagramBeforeDispatch(t *testing.T) {
	svc := newIngressService()
	iface := &Interface{Configured: true}
	svc.AddInterface(iface)
	child := NewChild("c1", ChildConfig{AcceptAnyProtocol: true, ReceiveTimeout: 5})
	child.State = ChildConfigured
	svc.AddChild(iface, child)

	var notified *RxToken
	child.Recv(&RxToken{Notify: func(tok *RxToken) { notified = tok }})

	f1 := buildFrame(77, 17, false, true, 0, testSrc, testDst, []byte("01234567"))
	svc.AcceptFrame(context.Background(), f1, nil, 0)
	assert.Nil(t, notified, "datagram incomplete after the first fragment")

	f2 := buildFrame(77, 17, false, false, 1, testSrc, testDst, []byte("89ABCD"))
	svc.AcceptFrame(context.Background(), f2, nil, 0)

	require.NotNil(t, notified)
	assert.Equal(t, [][]byte{[]byte("01234567"), []byte("89ABCD")}, notified.Wrapper.Fragments)
}

func TestAcceptFrameSkipsWhenDestroying(t *testing.T) {
	svc := newIngressService()
	svc.State = ServiceDestroying

	raw := buildFrame(1, 17, false, false, 0, testSrc, testDst, []byte("hello"))
	svc.AcceptFrame(context.Background(), raw, nil, 0)

	assert.EqualValues(t, 0, svc.Metrics.DatagramsDelivered)
	assert.EqualValues(t, 0, svc.Metrics.FragmentsDropped)
}

func TestAcceptFrameIoErrorIsIgnored(t *testing.T) {
	svc := newIngressService()
	svc.AcceptFrame(context.Background(), nil, assertIoErr, 0)
	assert.EqualValues(t, 0, svc.Metrics.FragmentsDropped)
}

var assertIoErr = context.DeadlineExceeded
