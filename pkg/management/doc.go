// Package management is the gRPC control surface for a running dataplane.
// The service reports status, hands out the assignment plan and runs the
// two migration calls on the process' migration controller.
//
// There's no .proto file for the service. Requests and responses use the
// well-known types (Struct, Empty, BytesValue, Int32Value) and the service
// descriptor is registered by hand, so any gRPC client can call it with the
// method names in this package.
package management

//
//Copyright 2019 Telenor Digital AS
//
//Licensed under the Apache License, Version 2.0 (the "License");
//you may not use this file except in compliance with the License.
//You may obtain a copy of the License at
//
//http://www.apache.org/licenses/LICENSE-2.0
//
//Unless required by applicable law or agreed to in writing, software
//distributed under the License is distributed on an "AS IS" BASIS,
//WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//See the License for the specific language governing permissions and
//limitations under the License.
//
