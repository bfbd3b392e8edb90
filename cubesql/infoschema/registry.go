// Copyright 2020-2021 Dolthub, Inc.
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

package infoschema

// Providers lists every virtual table this package implements, in the
// order the C8/C9 front-ends should advertise them when a client asks
// what's in the catalog.
var Providers = []Provider{
	Columns{},
	Tables{},
	SvvTableInfo{},
	PgType{},
}

// Lookup returns the provider registered under name, or false.
func Lookup(name string) (Provider, bool) {
	for _, p := range Providers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}
