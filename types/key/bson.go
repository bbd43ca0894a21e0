package key

import (
	"encoding"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Node public keys travel inside bson encoded contact info, as their text form.

func textMarshalBson(val encoding.TextMarshaler) (bsontype.Type, []byte, error) {
	textBytes, err := val.MarshalText()
	if err != nil {
		return 0, nil, err
	}

	return bson.MarshalValue(string(textBytes))
}

func textUnmarshalBson(val encoding.TextUnmarshaler, b bsontype.Type, bytes []byte) error {
	var s = new(string)

	if err := bson.UnmarshalValue(b, bytes, s); err != nil {
		return err
	}

	return val.UnmarshalText([]byte(*s))
}

func (n *NodePublic) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return textMarshalBson(n)
}

func (n *NodePublic) UnmarshalBSONValue(b bsontype.Type, bytes []byte) error {
	return textUnmarshalBson(n, b, bytes)
}
