package storage_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/your-org/playerid/internal/storage"
)

func TestSnapshotKey(t *testing.T) {
	Convey("Given a video, frame and track", t, func() {
		videoID := uuid.New().String()

		Convey("Then the key is canonical and frame-sortable", func() {
			key := storage.SnapshotKey(videoID, 42, "t7")
			So(key, ShouldEqual, "crops/"+videoID+"/000042_t7.jpg")
		})

		Convey("Then keys for one video share a purgeable prefix", func() {
			a := storage.SnapshotKey(videoID, 1, "t1")
			b := storage.SnapshotKey(videoID, 9000, "t2")
			So(strings.HasPrefix(a, "crops/"+videoID+"/"), ShouldBeTrue)
			So(strings.HasPrefix(b, "crops/"+videoID+"/"), ShouldBeTrue)
		})
	})
}
