package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"dynamics-archiver-go/internal/config"
	"dynamics-archiver-go/internal/feed"
)

var (
	mongoOnce sync.Once
	mongoCli  *mongo.Client
	mongoErr  error
)

func mongoDBName() string {
	v := strings.TrimSpace(config.AppConfig.MongoDB)
	if v == "" {
		return "bilibili_dynamic"
	}
	return v
}

func mongoClient() (*mongo.Client, error) {
	if backendKind() != backendMongoDB {
		return nil, errors.New("mongodb backend disabled")
	}
	mongoOnce.Do(func() {
		uri := strings.TrimSpace(config.AppConfig.MongoURI)
		if uri == "" {
			mongoErr = errors.New("MONGO_URI is empty")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			mongoErr = err
			return
		}
		if err := cli.Ping(ctx, readpref.Primary()); err != nil {
			_ = cli.Disconnect(ctx)
			mongoErr = err
			return
		}
		if err := initMongoIndexes(ctx, cli); err != nil {
			_ = cli.Disconnect(ctx)
			mongoErr = err
			return
		}
		mongoCli = cli
	})
	return mongoCli, mongoErr
}

func initMongoIndexes(ctx context.Context, cli *mongo.Client) error {
	core := cli.Database(mongoDBName()).Collection("dynamic_core")
	_, err := core.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "host_mid", Value: 1}, {Key: "id_str", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_host_item"),
		},
		{
			Keys:    bson.D{{Key: "publish_ts", Value: -1}},
			Options: options.Index().SetName("idx_publish_ts"),
		},
	})
	if err != nil {
		return fmt.Errorf("mongo create indexes dynamic_core: %w", err)
	}
	return nil
}

func mongoCore() (*mongo.Collection, error) {
	cli, err := mongoClient()
	if err != nil {
		return nil, err
	}
	return cli.Database(mongoDBName()).Collection("dynamic_core"), nil
}

// The mongo backend keeps one document per item holding the core, author and
// stat fields together; the relational backends split those across tables.
func mongoUpsertItem(hostMID string, it feed.Item) error {
	col, err := mongoCore()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var visible any
	if it.Visible != nil {
		visible = *it.Visible
	}
	set := bson.M{
		"type":              it.Type,
		"visible":           visible,
		"publish_ts":        it.PublishTS,
		"comment_id_str":    it.CommentIDStr,
		"comment_type":      it.CommentType,
		"rid_str":           it.RidStr,
		"txt":               it.Text,
		"author_mid":        it.AuthorMid,
		"author_name":       it.AuthorName,
		"face":              it.AuthorFace,
		"bvid":              it.BVID,
		"title":             it.Title,
		"cover":             it.Cover,
		"description":       it.Desc,
		"article_title":     it.ArticleTitle,
		"article_covers":    it.ArticleCovers,
		"opus_title":        it.OpusTitle,
		"opus_summary_text": it.OpusSummary,
		"like_count":        it.LikeCount,
		"comment_count":     it.CommentCount,
		"repost_count":      it.RepostCount,
		"view_count":        it.ViewCount,
		"fetch_time":        time.Now().Unix(),
	}
	_, err = col.UpdateOne(ctx,
		bson.M{"host_mid": hostMID, "id_str": it.IDStr},
		bson.M{
			"$set": set,
			"$setOnInsert": bson.M{
				"media_locals":      "",
				"media_count":       int64(0),
				"live_media_locals": "",
				"live_media_count":  int64(0),
			},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func mongoItemExists(hostMID, idStr string) (bool, error) {
	col, err := mongoCore()
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := col.CountDocuments(ctx, bson.M{"host_mid": hostMID, "id_str": idStr}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func mongoAttachMediaLocals(hostMID, idStr string, mediaLocals, liveLocals []string) error {
	col, err := mongoCore()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Aggregation-pipeline update so empty columns fill exactly once,
	// matching the SQL CASE WHEN.
	keepOrSet := func(field string, val any) bson.M {
		return bson.M{
			"$cond": bson.A{
				bson.M{"$or": bson.A{
					bson.M{"$eq": bson.A{"$" + field, ""}},
					bson.M{"$eq": bson.A{"$" + field, nil}},
				}},
				val,
				"$" + field,
			},
		}
	}
	mediaEmpty := bson.M{"$or": bson.A{
		bson.M{"$eq": bson.A{"$media_locals", ""}},
		bson.M{"$eq": bson.A{"$media_locals", nil}},
	}}
	liveEmpty := bson.M{"$or": bson.A{
		bson.M{"$eq": bson.A{"$live_media_locals", ""}},
		bson.M{"$eq": bson.A{"$live_media_locals", nil}},
	}}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"media_locals":      keepOrSet("media_locals", strings.Join(mediaLocals, ",")),
			"media_count":       bson.M{"$cond": bson.A{mediaEmpty, int64(len(mediaLocals)), "$media_count"}},
			"live_media_locals": keepOrSet("live_media_locals", strings.Join(liveLocals, ",")),
			"live_media_count":  bson.M{"$cond": bson.A{liveEmpty, int64(len(liveLocals)), "$live_media_count"}},
		}}},
	}
	_, err = col.UpdateOne(ctx, bson.M{"host_mid": hostMID, "id_str": idStr}, pipeline)
	return err
}

func mongoListHosts(limit, offset int) ([]HostStats, error) {
	col, err := mongoCore()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cur, err := col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":             "$host_mid",
			"item_count":      bson.M{"$sum": 1},
			"last_publish_ts": bson.M{"$max": "$publish_ts"},
			"last_fetch_time": bson.M{"$max": "$fetch_time"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "last_publish_ts", Value: -1}, {Key: "item_count", Value: -1}}}},
		{{Key: "$skip", Value: offset}},
		{{Key: "$limit", Value: limit}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []HostStats
	for cur.Next(ctx) {
		var doc struct {
			HostMID       string `bson:"_id"`
			ItemCount     int64  `bson:"item_count"`
			LastPublishTS int64  `bson:"last_publish_ts"`
			LastFetchTime int64  `bson:"last_fetch_time"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, HostStats{
			HostMID:       doc.HostMID,
			UpName:        mongoLatestAuthorName(ctx, col, doc.HostMID),
			ItemCount:     doc.ItemCount,
			LastPublishTS: doc.LastPublishTS,
			LastFetchTime: doc.LastFetchTime,
		})
	}
	return out, cur.Err()
}

// mongoLatestAuthorName finds the most recent non-empty author name recorded
// for one owner, or "".
func mongoLatestAuthorName(ctx context.Context, col *mongo.Collection, hostMID string) string {
	var doc struct {
		AuthorName string `bson:"author_name"`
	}
	err := col.FindOne(ctx,
		bson.M{"host_mid": hostMID, "author_name": bson.M{"$nin": bson.A{"", nil}}},
		options.FindOne().
			SetSort(bson.D{{Key: "publish_ts", Value: -1}, {Key: "fetch_time", Value: -1}}).
			SetProjection(bson.M{"author_name": 1}),
	).Decode(&doc)
	if err != nil {
		return ""
	}
	return doc.AuthorName
}

func mongoListItems(hostMID string, limit, offset int) (int64, []ItemRow, error) {
	col, err := mongoCore()
	if err != nil {
		return 0, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	total, err := col.CountDocuments(ctx, bson.M{"host_mid": hostMID})
	if err != nil {
		return 0, nil, err
	}
	if total == 0 {
		return 0, nil, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "publish_ts", Value: -1}, {Key: "fetch_time", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cur, err := col.Find(ctx, bson.M{"host_mid": hostMID}, opts)
	if err != nil {
		return 0, nil, err
	}
	defer cur.Close(ctx)

	var out []ItemRow
	for cur.Next(ctx) {
		r, err := decodeMongoItem(cur)
		if err != nil {
			return 0, nil, err
		}
		out = append(out, r)
	}
	return total, out, cur.Err()
}

func mongoGetItem(idStr string) (*ItemRow, error) {
	col, err := mongoCore()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cur, err := col.Find(ctx, bson.M{"id_str": idStr}, options.Find().SetLimit(1))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	if !cur.Next(ctx) {
		return nil, cur.Err()
	}
	r, err := decodeMongoItem(cur)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func decodeMongoItem(cur *mongo.Cursor) (ItemRow, error) {
	var doc struct {
		HostMID         string `bson:"host_mid"`
		IDStr           string `bson:"id_str"`
		Type            string `bson:"type"`
		Visible         *bool  `bson:"visible"`
		PublishTS       int64  `bson:"publish_ts"`
		CommentIDStr    string `bson:"comment_id_str"`
		CommentType     int64  `bson:"comment_type"`
		RidStr          string `bson:"rid_str"`
		Text            string `bson:"txt"`
		AuthorName      string `bson:"author_name"`
		BVID            string `bson:"bvid"`
		Title           string `bson:"title"`
		Cover           string `bson:"cover"`
		Desc            string `bson:"description"`
		ArticleTitle    string `bson:"article_title"`
		ArticleCovers   string `bson:"article_covers"`
		OpusTitle       string `bson:"opus_title"`
		OpusSummary     string `bson:"opus_summary_text"`
		MediaLocals     string `bson:"media_locals"`
		MediaCount      int64  `bson:"media_count"`
		LiveMediaLocals string `bson:"live_media_locals"`
		LiveMediaCount  int64  `bson:"live_media_count"`
		FetchTime       int64  `bson:"fetch_time"`
		LikeCount       int64  `bson:"like_count"`
		CommentCount    int64  `bson:"comment_count"`
		RepostCount     int64  `bson:"repost_count"`
		ViewCount       int64  `bson:"view_count"`
	}
	if err := cur.Decode(&doc); err != nil {
		return ItemRow{}, err
	}
	return ItemRow(doc), nil
}
