/*
 * Copyright 2017 Dgraph Labs, Inc. and Contributors
 * Modifications copyright (C) 2017 Andy Kimball and Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package deltaskl

// Iterator is a forward iterator over the skiplist object. Use
// Skiplist.NewIter to construct an iterator. The current state of the
// iterator can be cloned by simply value copying the struct. Records added
// concurrently with iteration are observed if they are linked in ahead of the
// iterator's position.
type Iterator struct {
	list *Skiplist
	nd   *node
}

// Valid returns true iff the iterator is positioned at a valid node.
func (it *Iterator) Valid() bool { return it.nd != nil }

// Key returns the key at the current position.
func (it *Iterator) Key() Key {
	return it.nd.key
}

// Value returns the value at the current position.
func (it *Iterator) Value() []byte {
	return it.nd.value
}

// Next advances to the next position. If there are no following nodes, then
// Valid() will be false after this call.
func (it *Iterator) Next() {
	it.nd = it.nd.tower[0].Load()
}

// SeekGE moves the iterator to the first entry whose key is greater than or
// equal to the given key. Returns true if the given key exists and false
// otherwise.
func (it *Iterator) SeekGE(key Key) (found bool) {
	it.nd, found = it.seekForBaseSplice(key)
	return found
}

// First seeks position at the first entry in list. Final state of iterator is
// Valid() iff list is not empty.
func (it *Iterator) First() {
	it.nd = it.list.head.tower[0].Load()
}

func (it *Iterator) seekForBaseSplice(key Key) (next *node, found bool) {
	prev := it.list.head
	for level := int(it.list.Height() - 1); ; level-- {
		prev, next, found = it.list.findSpliceForLevel(key, level, prev)
		if found || level == 0 {
			break
		}
	}
	return next, found
}
