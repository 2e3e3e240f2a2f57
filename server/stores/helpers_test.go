package stores

import (
	"encoding/json"

	"github.com/credgate/credgate/server/model"
)

func testCredential(name, typ, data string) model.Credential {
	return model.Credential{Name: name, Type: typ, Data: json.RawMessage(data)}
}
