// Package dataplane is a ready-to-run flow affinity daemon. It runs one
// worker per simulated core. Every worker classifies synthetic traffic with
// its own classifier and hands the sub-batches to per-core consumers. The
// management service, Prometheus metrics and zeroconf announcements are
// wired up by Run.
package dataplane

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
