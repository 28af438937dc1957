// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package version

import (
	"strings"
	"testing"
)

func TestUserAgent(t *testing.T) {
	t.Parallel()

	ua := UserAgent()
	if !strings.HasPrefix(ua, CmdName()+"/") {
		t.Fatalf("user agent %q does not start with the command name", ua)
	}
	if !strings.HasSuffix(ua, "(+https://github.com/penggan00/rss-sub000)") {
		t.Fatalf("user agent %q does not carry the project URL", ua)
	}
}

func TestVersionString(t *testing.T) {
	t.Parallel()

	s := Version().String()
	if !strings.Contains(s, CmdName()) {
		t.Fatalf("version output %q does not mention the command name", s)
	}
}
