package openbilling

import "io"

// closeProvider releases a candidate that is out of the running, when it
// holds releasable resources at all.
func closeProvider(p Provider) {
	if c, ok := p.(io.Closer); ok {
		_ = c.Close()
	}
}
