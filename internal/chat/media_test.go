package chat

import (
	"encoding/base64"
	"strings"
	"testing"
)

func inlinePNG(size int) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(make([]byte, size))
}

func TestInlineImageWithinLimit(t *testing.T) {
	rig := newTestRig(t, Options{})

	a := rig.join(t, "general", "A", "user-a")
	a.handleEvent(&InboundEvent{Type: EvtImage, Image: inlinePNG(1 << 20), FileName: "cat.png", Text: "look"})

	ev := recvEventOfType(t, a, EvtImage)
	if ev.URL == "" || ev.Text != "look" || ev.FileName != "cat.png" {
		t.Fatalf("unexpected media event %+v", ev)
	}
	if rig.objects.count() != 1 {
		t.Fatalf("expected one stored object, got %d", rig.objects.count())
	}
	if rig.store.insertCount() != 1 {
		t.Fatal("media message not persisted")
	}
}

func TestOversizeImageRejectedForOrdinaryUser(t *testing.T) {
	rig := newTestRig(t, Options{})

	a := rig.join(t, "general", "A", "user-a")
	a.handleEvent(&InboundEvent{Type: EvtImage, Image: inlinePNG(3 << 20)})

	ev := recvEventOfType(t, a, EvtError)
	if !strings.Contains(ev.Reason, "limit") {
		t.Fatalf("unexpected reason %q", ev.Reason)
	}
	if rig.objects.count() != 0 || rig.store.insertCount() != 0 {
		t.Fatal("oversize payload left traces")
	}
}

func TestPrivilegedImageTier(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.flags.subs["user-a"] = true

	a := rig.join(t, "general", "A", "user-a")

	a.handleEvent(&InboundEvent{Type: EvtImage, Image: inlinePNG(5 << 20)})
	recvEventOfType(t, a, EvtImage)

	a.handleEvent(&InboundEvent{Type: EvtImage, Image: inlinePNG(8 << 20)})
	recvEventOfType(t, a, EvtError)
}

func TestNonImageMediaFlatLimit(t *testing.T) {
	rig := newTestRig(t, Options{})

	a := rig.join(t, "general", "A", "user-a")

	// 8 MB is over the image tier but fine for a generic file.
	payload := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(make([]byte, 8<<20))
	a.handleEvent(&InboundEvent{Type: EvtFile, Image: payload, FileName: "doc.pdf"})
	recvEventOfType(t, a, EvtFile)
}

func TestOversizeBatchLeavesNoPartialStorage(t *testing.T) {
	rig := newTestRig(t, Options{})

	a := rig.join(t, "general", "A", "user-a")
	a.handleEvent(&InboundEvent{Type: EvtImage, Images: []string{
		inlinePNG(1 << 20),
		inlinePNG(3 << 20), // over the tier
	}})

	recvEventOfType(t, a, EvtError)
	if rig.objects.count() != 0 {
		t.Fatal("partial storage after oversize batch")
	}
	if rig.store.insertCount() != 0 {
		t.Fatal("partial persistence after oversize batch")
	}
}

func TestStoreFailureRollsBackSiblings(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.objects.failAt = 2

	a := rig.join(t, "general", "A", "user-a")
	a.handleEvent(&InboundEvent{Type: EvtImage, Images: []string{
		inlinePNG(1024),
		inlinePNG(1024),
	}})

	recvEventOfType(t, a, EvtError)
	if rig.objects.count() != 0 {
		t.Fatal("first object not rolled back after second store failed")
	}
}

func TestInsertFailureRollsBackBatch(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.store.insertFailAt = 2

	a := rig.join(t, "general", "A", "user-a")
	b := rig.join(t, "general", "B", "user-b")

	a.handleEvent(&InboundEvent{Type: EvtImage, Images: []string{
		inlinePNG(1024),
		inlinePNG(1024),
	}})

	recvEventOfType(t, a, EvtError)
	if rig.store.insertCount() != 0 {
		t.Fatalf("%d row(s) survive the failed operation", rig.store.insertCount())
	}
	if rig.objects.count() != 0 {
		t.Fatal("stored objects survive the failed operation")
	}
	// Nothing was broadcast for the first item either.
	expectNoEvent(t, b)
}

func TestHostedReferenceSkipsStorage(t *testing.T) {
	rig := newTestRig(t, Options{})

	a := rig.join(t, "general", "A", "user-a")
	a.handleEvent(&InboundEvent{Type: EvtVideo, Image: "https://cdn.example.test/clip.mp4"})

	ev := recvEventOfType(t, a, EvtVideo)
	if ev.URL != "https://cdn.example.test/clip.mp4" {
		t.Fatalf("hosted ref mangled: %q", ev.URL)
	}
	if rig.objects.count() != 0 {
		t.Fatal("hosted reference should not hit the object store")
	}
}

func TestMalformedInlinePayloadRejected(t *testing.T) {
	rig := newTestRig(t, Options{})

	a := rig.join(t, "general", "A", "user-a")
	a.handleEvent(&InboundEvent{Type: EvtImage, Image: "data:image/png;base64,@@not-base64@@"})

	recvEventOfType(t, a, EvtError)
}
