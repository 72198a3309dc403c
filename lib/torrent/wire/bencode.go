// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package wire

import (
	"fmt"
	"sort"
	"strconv"
)

// bDict, bList, bInt and bBytes are the bencode value shapes this package
// needs to move BEP 10/11/9 extension payloads on and off the wire. This is
// deliberately not a general bencode codec: decoding a .torrent file's info
// dictionary remains out of scope, handled by an external collaborator.
type bDict map[string]interface{}

// bencodeEncode renders v (a bDict, []interface{}, int, int64, string, or
// []byte) in bencode form.
func bencodeEncode(v interface{}) []byte {
	switch t := v.(type) {
	case bDict:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b := []byte{'d'}
		for _, k := range keys {
			b = append(b, bencodeEncode(k)...)
			b = append(b, bencodeEncode(t[k])...)
		}
		return append(b, 'e')
	case []interface{}:
		b := []byte{'l'}
		for _, e := range t {
			b = append(b, bencodeEncode(e)...)
		}
		return append(b, 'e')
	case int:
		return []byte(fmt.Sprintf("i%de", t))
	case int64:
		return []byte(fmt.Sprintf("i%de", t))
	case string:
		return []byte(fmt.Sprintf("%d:%s", len(t), t))
	case []byte:
		return append([]byte(fmt.Sprintf("%d:", len(t))), t...)
	default:
		panic(fmt.Sprintf("wire: bencodeEncode: unsupported type %T", v))
	}
}

// bencodeDecode parses one bencode value from the start of buf, returning
// the value and the number of bytes consumed.
func bencodeDecode(buf []byte) (interface{}, int, error) {
	if len(buf) == 0 {
		return nil, 0, fmt.Errorf("wire: bencode: unexpected end of input")
	}
	switch {
	case buf[0] == 'd':
		d := bDict{}
		i := 1
		for i < len(buf) && buf[i] != 'e' {
			k, n, err := bencodeDecode(buf[i:])
			if err != nil {
				return nil, 0, err
			}
			i += n
			key, ok := k.([]byte)
			if !ok {
				return nil, 0, fmt.Errorf("wire: bencode: dict key is not a byte string")
			}
			v, n, err := bencodeDecode(buf[i:])
			if err != nil {
				return nil, 0, err
			}
			i += n
			d[string(key)] = v
		}
		if i >= len(buf) {
			return nil, 0, fmt.Errorf("wire: bencode: unterminated dict")
		}
		return d, i + 1, nil
	case buf[0] == 'l':
		var l []interface{}
		i := 1
		for i < len(buf) && buf[i] != 'e' {
			v, n, err := bencodeDecode(buf[i:])
			if err != nil {
				return nil, 0, err
			}
			i += n
			l = append(l, v)
		}
		if i >= len(buf) {
			return nil, 0, fmt.Errorf("wire: bencode: unterminated list")
		}
		return l, i + 1, nil
	case buf[0] == 'i':
		end := indexByte(buf, 'e')
		if end < 0 {
			return nil, 0, fmt.Errorf("wire: bencode: unterminated integer")
		}
		n, err := strconv.ParseInt(string(buf[1:end]), 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("wire: bencode: malformed integer: %s", err)
		}
		return n, end + 1, nil
	case buf[0] >= '0' && buf[0] <= '9':
		colon := indexByte(buf, ':')
		if colon < 0 {
			return nil, 0, fmt.Errorf("wire: bencode: malformed byte string length")
		}
		length, err := strconv.Atoi(string(buf[:colon]))
		if err != nil {
			return nil, 0, fmt.Errorf("wire: bencode: malformed byte string length: %s", err)
		}
		start := colon + 1
		if start+length > len(buf) {
			return nil, 0, fmt.Errorf("wire: bencode: byte string runs past end of input")
		}
		return append([]byte(nil), buf[start:start+length]...), start + length, nil
	default:
		return nil, 0, fmt.Errorf("wire: bencode: unrecognized value at offset 0 (byte %q)", buf[0])
	}
}

func indexByte(buf []byte, c byte) int {
	for i, b := range buf {
		if b == c {
			return i
		}
	}
	return -1
}

func dictInt(d bDict, key string) (int64, bool) {
	v, ok := d[key]
	if !ok {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}

func dictBytes(d bDict, key string) ([]byte, bool) {
	v, ok := d[key]
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

func dictDict(d bDict, key string) (bDict, bool) {
	v, ok := d[key]
	if !ok {
		return nil, false
	}
	sub, ok := v.(bDict)
	return sub, ok
}
