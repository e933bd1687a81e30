// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bufex

import "code.hybscloud.com/atomix"

// TableSerial is a monotonically increasing identifier assigned to
// each validated procedure Table, so multiple compiled tables in one
// process are distinguishable in logs and panics.
type TableSerial = uint32

// tableCounter is the global monotonic counter for table serials.
var tableCounter atomix.Uint32

// nextTableSerial returns the next monotonically increasing serial.
func nextTableSerial() TableSerial {
	return tableCounter.Add(1)
}
