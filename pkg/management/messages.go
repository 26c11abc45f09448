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
import (
	"fmt"
	"math"
	"time"

	"github.com/lab5e/flowfunk/pkg/affinity"
	"google.golang.org/protobuf/types/known/structpb"
)

// Status is the status of a running dataplane
type Status struct {
	Cores         int
	Groups        int
	Segments      int
	Flows         int
	Generation    uint64
	FlowsPerCore  []int
	GroupsPerCore []int
	FlowsMean     float64 // mean number of flows per core
	FlowsStdDev   float64
	Pending       []affinity.MigrationStatus
}

func intList(v []int) []interface{} {
	ret := make([]interface{}, len(v))
	for i := range v {
		ret[i] = v[i]
	}
	return ret
}

func listInts(v *structpb.Value) []int {
	values := v.GetListValue().GetValues()
	ret := make([]int, len(values))
	for i := range values {
		ret[i] = int(values[i].GetNumberValue())
	}
	return ret
}

// wholeNumber returns the field as a non-negative integer
func wholeNumber(s *structpb.Struct, name string, limit float64) (int64, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return 0, fmt.Errorf("missing field %q", name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("field %q is not a number", name)
	}
	if n.NumberValue < 0 || n.NumberValue > limit || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, fmt.Errorf("field %q is not a valid index: %v", name, n.NumberValue)
	}
	return int64(n.NumberValue), nil
}

func movesToStruct(source int, moves []affinity.Move) (*structpb.Struct, error) {
	list := make([]interface{}, len(moves))
	for i, m := range moves {
		list[i] = map[string]interface{}{
			"group": int64(m.Group),
			"to":    m.To,
		}
	}
	return structpb.NewStruct(map[string]interface{}{
		"source": source,
		"moves":  list,
	})
}

func structToMoves(s *structpb.Struct) (int, []affinity.Move, error) {
	source, err := wholeNumber(s, "source", math.MaxInt32)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", affinity.ErrInvalidCore, err)
	}
	var moves []affinity.Move
	for _, v := range s.GetFields()["moves"].GetListValue().GetValues() {
		m := v.GetStructValue()
		if m == nil {
			return 0, nil, fmt.Errorf("%w: move is not a struct", affinity.ErrProtocolMisuse)
		}
		group, err := wholeNumber(m, "group", math.MaxUint32)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %v", affinity.ErrUnknownGroup, err)
		}
		to, err := wholeNumber(m, "to", math.MaxInt32)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %v", affinity.ErrInvalidCore, err)
		}
		moves = append(moves, affinity.Move{Group: uint32(group), To: int(to)})
	}
	return int(source), moves, nil
}

func migrationFields(m affinity.MigrationStatus) map[string]interface{} {
	list := make([]interface{}, len(m.Moves))
	for i, mv := range m.Moves {
		list[i] = map[string]interface{}{
			"group": int64(mv.Group),
			"to":    mv.To,
		}
	}
	return map[string]interface{}{
		"source":  m.Source,
		"moves":   list,
		"epoch":   m.Epoch,
		"moved":   m.Moved,
		"state":   m.State.String(),
		"started": m.Started.Format(time.RFC3339Nano),
	}
}

func migrationToStruct(m affinity.MigrationStatus) (*structpb.Struct, error) {
	return structpb.NewStruct(migrationFields(m))
}

func structToMigration(s *structpb.Struct) affinity.MigrationStatus {
	f := s.GetFields()
	ret := affinity.MigrationStatus{
		Source: int(f["source"].GetNumberValue()),
		Epoch:  uint64(f["epoch"].GetNumberValue()),
		Moved:  int(f["moved"].GetNumberValue()),
		State:  affinity.Stable,
	}
	if f["state"].GetStringValue() == affinity.Draining.String() {
		ret.State = affinity.Draining
	}
	if t, err := time.Parse(time.RFC3339Nano, f["started"].GetStringValue()); err == nil {
		ret.Started = t
	}
	for _, v := range f["moves"].GetListValue().GetValues() {
		m := v.GetStructValue().GetFields()
		ret.Moves = append(ret.Moves, affinity.Move{
			Group: uint32(m["group"].GetNumberValue()),
			To:    int(m["to"].GetNumberValue()),
		})
	}
	return ret
}

func statusToStruct(s Status) (*structpb.Struct, error) {
	pending := make([]interface{}, len(s.Pending))
	for i := range s.Pending {
		pending[i] = migrationFields(s.Pending[i])
	}
	return structpb.NewStruct(map[string]interface{}{
		"cores":         s.Cores,
		"groups":        s.Groups,
		"segments":      s.Segments,
		"flows":         s.Flows,
		"generation":    s.Generation,
		"flowsPerCore":  intList(s.FlowsPerCore),
		"groupsPerCore": intList(s.GroupsPerCore),
		"flowsMean":     s.FlowsMean,
		"flowsStdDev":   s.FlowsStdDev,
		"pending":       pending,
	})
}

func structToStatus(s *structpb.Struct) Status {
	f := s.GetFields()
	ret := Status{
		Cores:         int(f["cores"].GetNumberValue()),
		Groups:        int(f["groups"].GetNumberValue()),
		Segments:      int(f["segments"].GetNumberValue()),
		Flows:         int(f["flows"].GetNumberValue()),
		Generation:    uint64(f["generation"].GetNumberValue()),
		FlowsPerCore:  listInts(f["flowsPerCore"]),
		GroupsPerCore: listInts(f["groupsPerCore"]),
		FlowsMean:     f["flowsMean"].GetNumberValue(),
		FlowsStdDev:   f["flowsStdDev"].GetNumberValue(),
	}
	for _, v := range f["pending"].GetListValue().GetValues() {
		ret.Pending = append(ret.Pending, structToMigration(v.GetStructValue()))
	}
	return ret
}
