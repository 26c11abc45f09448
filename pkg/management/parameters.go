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

// ServerParameters is a parameter struct for the management gRPC server.
// The struct uses annotations from Kong (https://github.com/alecthomas/kong)
type ServerParameters struct {
	Endpoint string `kong:"help='Server endpoint',default='localhost:0'"`
	TLS      bool   `kong:"help='Enable TLS'"`
	CertFile string `kong:"help='Certificate file',type='existingfile'"`
	KeyFile  string `kong:"help='Certificate key file',type='existingfile'"`
}

// ClientParameters holds the gRPC and discovery configuration for clients
type ClientParameters struct {
	Name             string `kong:"help='Deployment name used for zeroconf discovery',default='flowfunk',short='n'"`
	Zeroconf         bool   `kong:"help='Use zeroconf to find the management endpoint',default='true',short='z'"`
	Endpoint         string `kong:"help='gRPC management endpoint',short='e'"`
	TLS              bool   `kong:"help='TLS enabled for gRPC',short='T'"`
	CertFile         string `kong:"help='Client certificate for management service',type='existingfile',short='C'"`
	HostnameOverride string `kong:"help='Host name override for certificate',short='H'"`
}
