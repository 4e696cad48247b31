package sqlclient

import (
	"fmt"

	"github.com/project-tsurugi/tsubakuro-go/internal/tsurugipb"
	"github.com/project-tsurugi/tsubakuro-go/lob"
	"github.com/project-tsurugi/tsubakuro-go/tgerr"
)

// Parameter is a client-facing named parameter value bound to a prepared
// statement invocation (spec §4.8 "prepared parameters carry a name, not
// positional"). Build one with the NullParameter/Int8Parameter/... helpers.
type Parameter struct {
	name        string
	isNull      bool
	int8        *int64
	float8      *float64
	character   *string
	lobPath     string
	lobIsClob   bool
	isLOB       bool
}

func NullParameter(name string) Parameter { return Parameter{name: name, isNull: true} }

func Int8Parameter(name string, v int64) Parameter { return Parameter{name: name, int8: &v} }

func Float8Parameter(name string, v float64) Parameter { return Parameter{name: name, float8: &v} }

func CharacterParameter(name string, v string) Parameter { return Parameter{name: name, character: &v} }

// LOBParameter binds name to the large object at clientPath (a local file),
// isClob selecting character vs. binary large object (spec §4.8 "for each
// [LOB value], it converts the client path to a server path using the
// send-side mapping and replaces the value with a unique channel-name").
func LOBParameter(name string, clientPath string, isClob bool) Parameter {
	return Parameter{name: name, lobPath: clientPath, lobIsClob: isClob, isLOB: true}
}

// buildParameters converts client-facing Parameters into wire Parameters,
// rewriting any LOB path into a channel name via sendMapper and collecting
// the resulting blob-info list for the framework request header. sendMapper
// may be nil when the caller is known not to bind any LOB parameters (e.g.
// PreparedExplain, which never executes). Channel names come from the
// Client's session-wide sequence (spec §4.8/§9: a LOB channel name must be
// unique within the session, not merely within one request) so two
// concurrent prepared-execute calls binding a LOB at the same parameter
// position never collide on the shared wire.
func buildParameters(params []Parameter, sendMapper *lob.SendMapper, nextChannelSeq func() int64) ([]tsurugipb.Parameter, []tsurugipb.BlobInfo, error) {
	pbParams := make([]tsurugipb.Parameter, 0, len(params))
	var blobs []tsurugipb.BlobInfo
	for _, p := range params {
		if p.isLOB {
			if sendMapper == nil {
				return nil, nil, tgerr.IllegalArgument(fmt.Sprintf("parameter %q: LOB not valid in this call", p.name), nil)
			}
			serverPath, err := sendMapper.ToServerPath(p.lobPath)
			if err != nil {
				return nil, nil, err
			}
			channel := fmt.Sprintf("blob-%d-%s", nextChannelSeq(), p.name)
			blobs = append(blobs, tsurugipb.BlobInfo{ChannelName: channel, Path: serverPath, IsClob: p.lobIsClob})
			pbParams = append(pbParams, tsurugipb.Parameter{Name: p.name, Value: tsurugipb.ParameterValue{ReferenceLOB: &channel}})
			continue
		}
		pbParams = append(pbParams, tsurugipb.Parameter{Name: p.name, Value: tsurugipb.ParameterValue{
			IsNull:    p.isNull,
			Int8:      p.int8,
			Float8:    p.float8,
			Character: p.character,
		}})
	}
	return pbParams, blobs, nil
}
