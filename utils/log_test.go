package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("a writer logger", t, func() {
		var buf bytes.Buffer
		log := NewLogger(&buf, INFO)

		Convey("drops messages below the minimum level", func() {
			log.Debug("hidden %d", 1)
			log.Warn("shown %d", 2)
			So(buf.String(), ShouldNotContainSubstring, "hidden")
			So(buf.String(), ShouldContainSubstring, "[WARN] shown 2")
			So(log.Enabled(DEBUG), ShouldBeFalse)
		})

		Convey("can be lowered at runtime", func() {
			log.SetMinLevel(TRACE)
			log.Trace("frame")
			So(buf.String(), ShouldContainSubstring, "[TRACE] frame")
		})
	})

	Convey("a file logger appends lines", t, func() {
		path := filepath.Join(t.TempDir(), "bridge.log")
		log, err := NewFileLogger(path, DEBUG, false)
		So(err, ShouldBeNil)
		log.Info("one")
		log.Error("two")
		So(log.Close(), ShouldBeNil)
		So(log.Close(), ShouldBeNil)

		data, err := os.ReadFile(path)
		So(err, ShouldBeNil)
		So(strings.Count(string(data), "\n"), ShouldEqual, 2)
	})

	Convey("level names parse", t, func() {
		So(ParseLevel("trace"), ShouldEqual, TRACE)
		So(ParseLevel("WARNING"), ShouldEqual, WARN)
		So(ParseLevel("bogus"), ShouldEqual, INFO)
		So(CRITICAL.String(), ShouldEqual, "CRITICAL")
	})
}
