package feed

import "encoding/json"

// 快取線格式編解碼器
//
// 持久層有兩種後端，各自對應一種快取線格式：
//   - 關聯式後端：JSON（可讀、欄位可演進）
//   - 寬列後端：row key 本身（緊湊、保序，項目的全部欄位都在 key 裡）
//
// 兩種編解碼器共用 cache.Codec 介面，
// 同一個 owner 的路由決策同時決定其後端與編解碼器，
// 因此單一快取鍵底下的位元組永遠屬於同一種格式。

// EntryJSONCodec 關聯式後端的動態項目編解碼器
type EntryJSONCodec struct{}

// Encode 序列化動態項目
func (EntryJSONCodec) Encode(e Entry) ([]byte, error) {
	return json.Marshal(e)
}

// Decode 反序列化動態項目
func (EntryJSONCodec) Decode(data []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// EntryRowKeyCodec 寬列後端的動態項目編解碼器
//
// 直接以 row key 作為快取線格式：32 bytes，無需額外序列化
type EntryRowKeyCodec struct{}

// Encode 序列化動態項目
func (EntryRowKeyCodec) Encode(e Entry) ([]byte, error) {
	return EncodeRowKey(e), nil
}

// Decode 反序列化動態項目
func (EntryRowKeyCodec) Decode(data []byte) (Entry, error) {
	return DecodeRowKey(data)
}

// TweetJSONCodec 貼文列表快取的編解碼器
type TweetJSONCodec struct{}

// Encode 序列化貼文
func (TweetJSONCodec) Encode(t Tweet) ([]byte, error) {
	return json.Marshal(t)
}

// Decode 反序列化貼文
func (TweetJSONCodec) Decode(data []byte) (Tweet, error) {
	var t Tweet
	if err := json.Unmarshal(data, &t); err != nil {
		return Tweet{}, err
	}
	return t, nil
}
