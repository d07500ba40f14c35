package workspace

import (
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/afero"
)

func TestWorkspace(t *testing.T) {
	Convey("Workspace lifecycle", t, func() {
		fs := afero.NewMemMapFs()

		Convey("Acquire creates a private directory", func() {
			ws, err := Acquire(fs, "y2m")
			So(err, ShouldBeNil)
			So(strings.HasPrefix(filepath.Base(ws.Dir()), "y2m-"), ShouldBeTrue)

			exists, err := afero.DirExists(fs, ws.Dir())
			So(err, ShouldBeNil)
			So(exists, ShouldBeTrue)
		})

		Convey("Two workspaces never share a directory", func() {
			a, err := Acquire(fs, "")
			So(err, ShouldBeNil)
			b, err := Acquire(fs, "")
			So(err, ShouldBeNil)
			So(a.Dir(), ShouldNotEqual, b.Dir())
		})

		Convey("Path stays inside the workspace", func() {
			ws, err := Acquire(fs, "y2m")
			So(err, ShouldBeNil)
			So(ws.Path("video.dat"), ShouldEqual, filepath.Join(ws.Dir(), "video.dat"))
			So(ws.Path("../../etc/passwd"), ShouldEqual, filepath.Join(ws.Dir(), "passwd"))
		})

		Convey("Release removes files and is idempotent", func() {
			ws, err := Acquire(fs, "y2m")
			So(err, ShouldBeNil)
			So(afero.WriteFile(fs, ws.Path("audio.dat"), []byte("opus"), 0o644), ShouldBeNil)

			So(ws.Release(), ShouldBeNil)
			So(ws.Release(), ShouldBeNil)

			exists, err := afero.Exists(fs, ws.Dir())
			So(err, ShouldBeNil)
			So(exists, ShouldBeFalse)
		})

		Convey("Release on a nil workspace is a no-op", func() {
			var ws *Workspace
			So(ws.Release(), ShouldBeNil)
		})
	})
}
